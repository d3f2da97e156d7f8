package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"hash"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

func hasherFactory(algo protocol.BaseHashAlgo) (func() hash.Hash, error) {
	switch algo {
	case protocol.HashSHA256:
		return sha256.New, nil
	case protocol.HashSHA384:
		return sha512.New384, nil
	case protocol.HashSHA512:
		return sha512.New, nil
	default:
		return nil, spdmerr.New(spdmerr.InvalidParameter, "unsupported hash algorithm").WithDetail("algo", algo.String())
	}
}

type stdHMACProvider struct{}

// NewStdHMACProvider returns an HMACProvider backed by crypto/hmac keyed
// with the same hash family as the negotiated BaseHashAlgo.
func NewStdHMACProvider() sdkcrypto.HMACProvider { return stdHMACProvider{} }

func (stdHMACProvider) HMAC(algo protocol.BaseHashAlgo, key, data []byte) ([]byte, error) {
	factory, err := hasherFactory(algo)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(factory, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (p stdHMACProvider) Verify(algo protocol.BaseHashAlgo, key, data, tag []byte) error {
	expected, err := p.HMAC(algo, key, data)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return spdmerr.New(spdmerr.CryptoError, "hmac verification failed")
	}
	return nil
}
