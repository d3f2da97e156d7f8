package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openspdm/spdm-go/internal/logger"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/requester"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transport/wstransport"
)

func runExchange(cmd *cobra.Command, args []string) error {
	log := logger.GetDefaultLogger().WithFields(logger.String("component", "spdm-requester"))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tr, err := wstransport.Dial(ctx, dialAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", dialAddr, err)
	}
	defer tr.Close()

	e := requester.New(tr)

	version, err := e.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	log.Info("negotiated version", logger.String("version", version.String()))

	localCaps := protocol.CapCert | protocol.CapChal | protocol.CapKeyEx |
		protocol.CapPSK | protocol.CapEncrypt | protocol.CapMAC |
		protocol.CapHBeat | protocol.CapKeyUpd
	caps, err := e.GetCapabilities(ctx, localCaps)
	if err != nil {
		return fmt.Errorf("get capabilities: %w", err)
	}

	algo, err := e.NegotiateAlgorithms(ctx, message.NegotiateAlgorithmsReq{
		MeasurementSpec: protocol.MeasurementSpecDMTF,
		BaseAsym:        protocol.AsymECDSAP256,
		BaseHash:        protocol.HashSHA256,
		DHE:             protocol.DHESECP256R1,
		AEAD:            protocol.AEADAES128GCM,
		KeySchedule:     protocol.KeyScheduleSPDM,
	})
	if err != nil {
		return fmt.Errorf("negotiate algorithms: %w", err)
	}
	log.Info("negotiated algorithms",
		logger.String("base_hash", algo.BaseHash.String()),
		logger.String("base_asym", algo.BaseAsym.String()))

	var sess *session.Session
	if usePSK {
		sess, err = pskHandshake(ctx, e)
	} else {
		if !caps.Has(protocol.CapCert) {
			return fmt.Errorf("responder did not advertise certificate support")
		}
		sess, err = certHandshake(ctx, e)
	}
	if err != nil {
		return err
	}
	log.Info("session established", logger.Int("session_id", int(sess.ID())))

	if caps.Has(protocol.CapHBeat) {
		if err := e.Heartbeat(sess); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		log.Info("heartbeat ok")
	}

	if caps.Has(protocol.CapKeyUpd) {
		if err := e.KeyUpdate(sess, 1); err != nil {
			return fmt.Errorf("key update: %w", err)
		}
		log.Info("key update ok")
	}

	if err := e.EndSession(sess, false); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	log.Info("session ended")
	return nil
}

// certHandshake retrieves the slot's digest and certificate chain,
// challenges the responder against it, then runs KEY_EXCHANGE/FINISH.
func certHandshake(ctx context.Context, e *requester.Engine) (*session.Session, error) {
	if _, err := e.GetDigests(ctx); err != nil {
		return nil, fmt.Errorf("get digests: %w", err)
	}
	if _, err := e.GetCertificateChain(ctx, slot); err != nil {
		return nil, fmt.Errorf("get certificate chain: %w", err)
	}
	if _, err := e.Challenge(ctx, slot, 0); err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}

	sess, err := e.KeyExchange(ctx, slot, 0)
	if err != nil {
		return nil, fmt.Errorf("key exchange: %w", err)
	}
	if err := e.Finish(ctx, sess); err != nil {
		return nil, fmt.Errorf("finish: %w", err)
	}
	return sess, nil
}

// pskHandshake runs PSK_EXCHANGE/PSK_FINISH using the configured hint ID
// and secret.
func pskHandshake(ctx context.Context, e *requester.Engine) (*session.Session, error) {
	if pskHintID == "" {
		return nil, fmt.Errorf("--psk-hint is required with --psk")
	}
	secret := os.Getenv(pskSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("environment variable %s is not set", pskSecretEnv)
	}

	sess, err := e.PSKExchange(ctx, []byte(pskHintID), []byte(secret), 0)
	if err != nil {
		return nil, fmt.Errorf("psk exchange: %w", err)
	}
	if err := e.PSKFinish(ctx, sess); err != nil {
		return nil, fmt.Errorf("psk finish: %w", err)
	}
	return sess, nil
}
