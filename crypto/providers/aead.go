package providers

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

func newAEAD(algo protocol.AEADAlgo, key []byte) (cipher.AEAD, error) {
	switch algo {
	case protocol.AEADAES128GCM, protocol.AEADAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "aes key setup failed", err)
		}
		return cipher.NewGCM(block)
	case protocol.AEADChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, spdmerr.New(spdmerr.InvalidParameter, "unsupported aead algorithm").WithDetail("algo", algo.String())
	}
}

type stdAEADProvider struct{}

// NewStdAEADProvider returns an AEADProvider backed by crypto/aes's GCM mode
// and golang.org/x/crypto/chacha20poly1305.
func NewStdAEADProvider() sdkcrypto.AEADProvider { return stdAEADProvider{} }

func (stdAEADProvider) Encrypt(algo protocol.AEADAlgo, key, iv, aad, plaintext []byte) ([]byte, error) {
	a, err := newAEAD(algo, key)
	if err != nil {
		return nil, err
	}
	if len(iv) != a.NonceSize() {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "bad iv size").WithDetail("want", a.NonceSize()).WithDetail("have", len(iv))
	}
	return a.Seal(nil, iv, plaintext, aad), nil
}

func (stdAEADProvider) Decrypt(algo protocol.AEADAlgo, key, iv, aad, ciphertext []byte) ([]byte, error) {
	a, err := newAEAD(algo, key)
	if err != nil {
		return nil, err
	}
	if len(iv) != a.NonceSize() {
		return nil, spdmerr.New(spdmerr.InvalidParameter, "bad iv size").WithDetail("want", a.NonceSize()).WithDetail("have", len(iv))
	}
	plaintext, err := a.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.DecapFail, "aead decrypt failed", err)
	}
	return plaintext, nil
}
