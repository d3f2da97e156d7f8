// Package protocol holds the SPDM wire-level data model shared by every
// other package: versions, capability bitfields, algorithm selections,
// certificate chain layout, message codes, and buffer-size constants.
package protocol

import "fmt"

// Version is the negotiated SPDM protocol version. All subsequent message
// parsing is conditioned on it.
type Version uint8

const (
	Version10 Version = 0x10
	Version11 Version = 0x11
	Version12 Version = 0x12
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "1.0"
	case Version11:
		return "1.1"
	case Version12:
		return "1.2"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(v))
	}
}

// Valid reports whether v is one of the versions this engine understands.
func (v Version) Valid() bool {
	switch v {
	case Version10, Version11, Version12:
		return true
	default:
		return false
	}
}

// AtLeast reports whether v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	return v >= other
}
