package providers

import (
	"crypto/rand"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

type stdRandProvider struct{}

// NewStdRandProvider returns a RandProvider backed by crypto/rand.
func NewStdRandProvider() sdkcrypto.RandProvider { return stdRandProvider{} }

func (stdRandProvider) GetRandom(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return spdmerr.Wrap(spdmerr.CryptoError, "random generation failed", err)
	}
	return nil
}
