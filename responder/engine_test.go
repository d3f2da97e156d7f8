package responder

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openspdm/spdm-go/crypto/providers"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/requester"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transport/loopback"
)

func init() {
	providers.RegisterDefaults()
}

var testAlgorithms = protocol.Algorithms{
	BaseHash:        protocol.HashSHA256,
	MeasurementHash: protocol.HashSHA256,
	BaseAsym:        protocol.AsymECDSAP256,
	DHE:             protocol.DHESECP256R1,
	AEAD:            protocol.AEADAES128GCM,
	KeySchedule:     protocol.KeyScheduleSPDM,
	MeasurementSpec: protocol.MeasurementSpecDMTF,
}

func selfSignedCert(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "responder-leaf"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(10, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	return priv, der
}

func buildChain(hashSize int, der []byte) protocol.CertChainData {
	var c protocol.CertChainData
	copy(c.Data[protocol.PrefixLen:], make([]byte, hashSize))
	copy(c.Data[protocol.PrefixLen+hashSize:], der)
	c.DataSize = uint32(protocol.PrefixLen + hashSize + len(der))
	return c
}

// runResponder pumps frames off ep through e.Dispatch until ep is closed.
func runResponder(ep *loopback.Endpoint, e *Engine) {
	buf := make([]byte, protocol.MaxMessageBufferSize)
	for {
		n, err := ep.Receive(buf)
		if err != nil {
			return
		}
		resp := e.Dispatch(append([]byte(nil), buf[:n]...))
		if ep.Send(resp) != nil {
			return
		}
	}
}

// newTestEngine builds a responder.Engine provisioned with one
// self-signed certificate slot and one PSK hint, both usable across a
// full exchange sequence.
func newTestEngine(t *testing.T) (*Engine, []byte) {
	priv, der := selfSignedCert(t)
	chain := buildChain(testAlgorithms.HashSize(), der)

	cfg := Config{
		Versions: []protocol.Version{protocol.Version12},
		Capabilities: protocol.CapCert | protocol.CapChal | protocol.CapKeyEx |
			protocol.CapPSK | protocol.CapEncrypt | protocol.CapMAC |
			protocol.CapHBeat | protocol.CapKeyUpd,
		SupportedAlgorithms: testAlgorithms,
		PSKs:                map[string][]byte{"hint-1": []byte("a shared secret known to both sides")},
		SessionConfig:       session.DefaultConfig(),
	}
	cfg.Slots[0] = &SlotConfig{PrivateKey: priv, Chain: chain}

	return New(cfg), der
}

func TestResponderNegotiationDigestsAndChallenge(t *testing.T) {
	respEngine, der := newTestEngine(t)

	reqEnd, rspEnd := loopback.Pair()
	done := make(chan struct{})
	go func() { defer close(done); runResponder(rspEnd, respEngine) }()

	e := requester.New(reqEnd)
	ctx := context.Background()

	v, err := e.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, protocol.Version12, v)

	wantCaps := protocol.CapCert | protocol.CapChal | protocol.CapKeyEx |
		protocol.CapPSK | protocol.CapEncrypt | protocol.CapMAC |
		protocol.CapHBeat | protocol.CapKeyUpd
	caps, err := e.GetCapabilities(ctx, wantCaps)
	require.NoError(t, err)
	require.True(t, caps.Has(protocol.CapKeyEx))

	selected, err := e.NegotiateAlgorithms(ctx, message.NegotiateAlgorithmsReq{
		MeasurementSpec: testAlgorithms.MeasurementSpec,
		BaseAsym:        testAlgorithms.BaseAsym,
		BaseHash:        testAlgorithms.BaseHash,
		DHE:             testAlgorithms.DHE,
		AEAD:            testAlgorithms.AEAD,
		KeySchedule:     testAlgorithms.KeySchedule,
	})
	require.NoError(t, err)
	require.Equal(t, testAlgorithms, selected)

	digests, err := e.GetDigests(ctx)
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), digests.SlotMask)

	chain, err := e.GetCertificateChain(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, der, chain[protocol.PrefixLen+testAlgorithms.HashSize():])

	carsp, err := e.Challenge(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint8(0), carsp.Slot)

	reqEnd.Close()
	<-done
}

func TestResponderKeyExchangeFinishAndSecuredSession(t *testing.T) {
	respEngine, _ := newTestEngine(t)

	reqEnd, rspEnd := loopback.Pair()
	done := make(chan struct{})
	go func() { defer close(done); runResponder(rspEnd, respEngine) }()

	e := requester.New(reqEnd)
	ctx := context.Background()

	_, err := e.GetVersion(ctx)
	require.NoError(t, err)
	wantCaps := protocol.CapCert | protocol.CapChal | protocol.CapKeyEx |
		protocol.CapPSK | protocol.CapEncrypt | protocol.CapMAC |
		protocol.CapHBeat | protocol.CapKeyUpd
	_, err = e.GetCapabilities(ctx, wantCaps)
	require.NoError(t, err)
	_, err = e.NegotiateAlgorithms(ctx, message.NegotiateAlgorithmsReq{
		MeasurementSpec: testAlgorithms.MeasurementSpec,
		BaseAsym:        testAlgorithms.BaseAsym,
		BaseHash:        testAlgorithms.BaseHash,
		DHE:             testAlgorithms.DHE,
		AEAD:            testAlgorithms.AEAD,
		KeySchedule:     testAlgorithms.KeySchedule,
	})
	require.NoError(t, err)

	_, err = e.GetDigests(ctx)
	require.NoError(t, err)
	chain, err := e.GetCertificateChain(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, chain)

	sess, err := e.KeyExchange(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, session.Handshaking, sess.State())

	require.NoError(t, e.Finish(ctx, sess))
	require.Equal(t, session.Established, sess.State())

	require.NoError(t, e.Heartbeat(sess))
	require.NoError(t, e.KeyUpdate(sess, 7))
	require.NoError(t, e.EndSession(sess, false))

	reqEnd.Close()
	<-done
}

func TestResponderPSKExchangeAndFinish(t *testing.T) {
	respEngine, _ := newTestEngine(t)

	reqEnd, rspEnd := loopback.Pair()
	done := make(chan struct{})
	go func() { defer close(done); runResponder(rspEnd, respEngine) }()

	e := requester.New(reqEnd)
	ctx := context.Background()

	_, err := e.GetVersion(ctx)
	require.NoError(t, err)
	wantCaps := protocol.CapCert | protocol.CapChal | protocol.CapKeyEx |
		protocol.CapPSK | protocol.CapEncrypt | protocol.CapMAC |
		protocol.CapHBeat | protocol.CapKeyUpd
	_, err = e.GetCapabilities(ctx, wantCaps)
	require.NoError(t, err)
	_, err = e.NegotiateAlgorithms(ctx, message.NegotiateAlgorithmsReq{
		MeasurementSpec: testAlgorithms.MeasurementSpec,
		BaseAsym:        testAlgorithms.BaseAsym,
		BaseHash:        testAlgorithms.BaseHash,
		DHE:             testAlgorithms.DHE,
		AEAD:            testAlgorithms.AEAD,
		KeySchedule:     testAlgorithms.KeySchedule,
	})
	require.NoError(t, err)

	psk := []byte("a shared secret known to both sides")
	sess, err := e.PSKExchange(ctx, []byte("hint-1"), psk, 0)
	require.NoError(t, err)
	require.Equal(t, session.Handshaking, sess.State())

	require.NoError(t, e.PSKFinish(ctx, sess))
	require.Equal(t, session.Established, sess.State())

	require.NoError(t, e.Heartbeat(sess))
	require.NoError(t, e.EndSession(sess, false))

	reqEnd.Close()
	<-done
}

func TestResponderUnknownCodeReturnsError(t *testing.T) {
	respEngine, _ := newTestEngine(t)

	resp := respEngine.Dispatch([]byte{uint8(protocol.Version11), 0x90, 0, 0})
	require.NotEmpty(t, resp)
	require.Equal(t, uint8(protocol.CodeError), resp[1])
}
