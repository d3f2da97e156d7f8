package providers

import (
	"crypto/ecdh"
	"crypto/rand"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

func ecdhCurve(algo protocol.DHEAlgo) (ecdh.Curve, error) {
	switch algo {
	case protocol.DHESECP256R1:
		return ecdh.P256(), nil
	case protocol.DHESECP384R1:
		return ecdh.P384(), nil
	case protocol.DHESECP521R1:
		return ecdh.P521(), nil
	default:
		return nil, spdmerr.New(spdmerr.InvalidParameter, "unsupported dhe algorithm").WithDetail("algo", algo.String())
	}
}

// ecdhKeyPair implements crypto.DHEKeyPair over crypto/ecdh's NIST curves.
// FFDHE finite-field groups are intentionally not implemented: none of the
// libraries available to this engine provide them, and every modern
// responder/requester pair this engine targets negotiates an EC group
// instead (see DESIGN.md).
type ecdhKeyPair struct {
	curve ecdh.Curve
	priv  *ecdh.PrivateKey
}

type stdDHEProvider struct{}

// NewStdDHEProvider returns a DHEProvider covering the NIST EC groups via
// crypto/ecdh.
func NewStdDHEProvider() sdkcrypto.DHEProvider { return stdDHEProvider{} }

func (stdDHEProvider) Generate(algo protocol.DHEAlgo) (sdkcrypto.DHEKeyPair, error) {
	curve, err := ecdhCurve(algo)
	if err != nil {
		return nil, err
	}
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "ecdh key generation failed", err)
	}
	return &ecdhKeyPair{curve: curve, priv: priv}, nil
}

func (kp *ecdhKeyPair) PublicBytes() []byte {
	return kp.priv.PublicKey().Bytes()
}

func (kp *ecdhKeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	peer, err := kp.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.InvalidMsgField, "bad peer ecdh public key", err)
	}
	secret, err := kp.priv.ECDH(peer)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "ecdh shared secret derivation failed", err)
	}
	return secret, nil
}
