package requester

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

	"github.com/openspdm/spdm-go/codec"
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/crypto/providers"
	"github.com/openspdm/spdm-go/message"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/transport/loopback"
)

func init() {
	providers.RegisterDefaults()
}

func selfSignedCert(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-leaf"},
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

// fakeResponder answers the negotiation, certificate, and challenge
// exchanges a requester.Engine drives, just enough to exercise the real
// wire codecs and crypto registry end to end over a loopback transport.
type fakeResponder struct {
	t      *testing.T
	ep     *loopback.Endpoint
	priv   *ecdsa.PrivateKey
	der    []byte
	algo   protocol.Algorithms
}

func (f *fakeResponder) respond(encode func(w *codec.Writer) error) {
	w := codec.NewWriter(make([]byte, protocol.MaxMessageBufferSize))
	require.NoError(f.t, encode(w))
	require.NoError(f.t, f.ep.Send(w.Bytes()))
}

func (f *fakeResponder) run() {
	buf := make([]byte, protocol.MaxMessageBufferSize)

	n, err := f.ep.Receive(buf)
	require.NoError(f.t, err)
	_, err = message.DecodeGetVersionReq(codec.NewReader(buf[:n]))
	require.NoError(f.t, err)
	f.respond(message.VersionRsp{Versions: []protocol.Version{protocol.Version12}}.Encode)

	n, err = f.ep.Receive(buf)
	require.NoError(f.t, err)
	_, err = message.DecodeGetCapabilitiesReq(codec.NewReader(buf[:n]))
	require.NoError(f.t, err)
	f.respond(message.CapabilitiesRsp{Capabilities: protocol.CapCert | protocol.CapChal}.Encode)

	n, err = f.ep.Receive(buf)
	require.NoError(f.t, err)
	_, err = message.DecodeNegotiateAlgorithmsReq(codec.NewReader(buf[:n]))
	require.NoError(f.t, err)
	f.respond(message.AlgorithmsRsp{Selected: f.algo}.Encode)

	n, err = f.ep.Receive(buf)
	require.NoError(f.t, err)
	_, err = message.DecodeGetDigestsReq(codec.NewReader(buf[:n]))
	require.NoError(f.t, err)
	digest, err := sdkcrypto.Hash().HashAll(f.algo.BaseHash, f.der)
	require.NoError(f.t, err)
	f.respond(message.DigestsRsp{SlotMask: 0x01, Digests: [][]byte{digest}}.Encode)

	n, err = f.ep.Receive(buf)
	require.NoError(f.t, err)
	getCert, err := message.DecodeGetCertificateReq(codec.NewReader(buf[:n]))
	require.NoError(f.t, err)
	chain := buildChain(f.algo.HashSize(), f.der).Bytes()
	f.respond(message.CertificateRsp{
		Slot:         getCert.Slot,
		PortionLen:   uint16(len(chain)),
		RemainderLen: 0,
		CertChain:    chain,
	}.Encode)

	n, err = f.ep.Receive(buf)
	require.NoError(f.t, err)
	reqBytes := append([]byte(nil), buf[:n]...)
	challengeReq, err := message.DecodeChallengeReq(codec.NewReader(buf[:n]))
	require.NoError(f.t, err)

	rspNoSig := message.ChallengeAuthRsp{Slot: challengeReq.Slot}
	w := codec.NewWriter(make([]byte, protocol.MaxMessageBufferSize))
	require.NoError(f.t, rspNoSig.Encode(w))
	signed := append(append([]byte(nil), reqBytes...), w.Bytes()...)

	sig, err := sdkcrypto.Asym().Sign(f.algo.BaseAsym, f.algo.BaseHash, f.priv, signed)
	require.NoError(f.t, err)
	f.respond(message.ChallengeAuthRsp{Slot: challengeReq.Slot, Signature: sig}.Encode)
}

func TestRequesterNegotiationAndChallenge(t *testing.T) {
	priv, der := selfSignedCert(t)
	algo := protocol.Algorithms{
		BaseHash:        protocol.HashSHA256,
		MeasurementHash: protocol.HashSHA256,
		BaseAsym:        protocol.AsymECDSAP256,
		DHE:             protocol.DHESECP256R1,
		AEAD:            protocol.AEADAES128GCM,
		KeySchedule:     protocol.KeyScheduleSPDM,
		MeasurementSpec: protocol.MeasurementSpecDMTF,
	}

	reqEnd, rspEnd := loopback.Pair()
	fr := &fakeResponder{t: t, ep: rspEnd, priv: priv, der: der, algo: algo}
	done := make(chan struct{})
	go func() { defer close(done); fr.run() }()

	e := New(reqEnd)
	ctx := context.Background()

	v, err := e.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, protocol.Version12, v)

	caps, err := e.GetCapabilities(ctx, protocol.CapCert|protocol.CapChal)
	require.NoError(t, err)
	require.True(t, caps.Has(protocol.CapChal))

	selected, err := e.NegotiateAlgorithms(ctx, message.NegotiateAlgorithmsReq{
		MeasurementSpec: algo.MeasurementSpec,
		BaseAsym:        algo.BaseAsym,
		BaseHash:        algo.BaseHash,
		DHE:             algo.DHE,
		AEAD:            algo.AEAD,
		KeySchedule:     algo.KeySchedule,
	})
	require.NoError(t, err)
	require.Equal(t, algo, selected)

	digests, err := e.GetDigests(ctx)
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), digests.SlotMask)

	chain, err := e.GetCertificateChain(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, der, chain[protocol.PrefixLen+algo.HashSize():])

	carsp, err := e.Challenge(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint8(0), carsp.Slot)

	<-done
}
