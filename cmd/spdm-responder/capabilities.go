package main

import (
	"fmt"

	"github.com/openspdm/spdm-go/protocol"
)

var capabilityNames = map[string]protocol.Capabilities{
	"cert":               protocol.CapCert,
	"chal":               protocol.CapChal,
	"meas_raw":           protocol.CapMeasRaw,
	"meas_sig":           protocol.CapMeasSig,
	"mut_auth":           protocol.CapMutAuth,
	"key_ex":             protocol.CapKeyEx,
	"psk":                protocol.CapPSK,
	"encrypt":            protocol.CapEncrypt,
	"mac":                protocol.CapMAC,
	"handshake_in_clear": protocol.CapHandshakeInClear,
	"hbeat":              protocol.CapHBeat,
	"key_upd":            protocol.CapKeyUpd,
}

// parseCapabilities turns the configured capability names into a bitmask,
// rejecting anything unrecognized rather than silently dropping it.
func parseCapabilities(names []string) (protocol.Capabilities, error) {
	var caps protocol.Capabilities
	for _, n := range names {
		bit, ok := capabilityNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", n)
		}
		caps |= bit
	}
	return caps, nil
}
