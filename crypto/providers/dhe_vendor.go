package providers

import (
	"crypto/rand"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// vendorDHEProvider extends a classic DHEProvider with the ML-KEM-768
// vendor/extended KEM. Unlike Diffie-Hellman, a KEM exchange is asymmetric:
// the key-pair holder decapsulates a ciphertext, while the peer encapsulates
// against the published public key. mlkemKeyPair implements crypto.KEMKeyPair
// so session code can feature-detect the encapsulating side.
type vendorDHEProvider struct {
	base sdkcrypto.DHEProvider
}

// NewVendorDHEProvider wraps base, adding DHEVendorMLKEM768 support.
func NewVendorDHEProvider(base sdkcrypto.DHEProvider) sdkcrypto.DHEProvider {
	return vendorDHEProvider{base: base}
}

func (p vendorDHEProvider) Generate(algo protocol.DHEAlgo) (sdkcrypto.DHEKeyPair, error) {
	if algo != protocol.DHEVendorMLKEM768 {
		return p.base.Generate(algo)
	}
	pk, sk, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.CryptoError, "ml-kem-768 key generation failed", err)
	}
	return &mlkemKeyPair{pk: pk, sk: sk}, nil
}

type mlkemKeyPair struct {
	pk         *mlkem768.PublicKey
	sk         *mlkem768.PrivateKey
	sharedOnce []byte
}

func (kp *mlkemKeyPair) PublicBytes() []byte {
	buf := make([]byte, mlkem768.PublicKeySize)
	kp.pk.Pack(buf)
	return buf
}

// SharedSecret decapsulates ciphertext (the peer's Encapsulate output) using
// this key pair's private key. Call this on the side that generated the
// key pair and published PublicBytes().
func (kp *mlkemKeyPair) SharedSecret(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != mlkem768.CiphertextSize {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "bad ml-kem-768 ciphertext length").
			WithDetail("want", mlkem768.CiphertextSize).WithDetail("have", len(ciphertext))
	}
	ss := make([]byte, mlkem768.SharedKeySize)
	kp.sk.DecapsulateTo(ss, ciphertext)
	return ss, nil
}

// Encapsulate derives a fresh shared secret and the ciphertext to send back
// to the peer's public key bytes. Call this on the side that received the
// peer's PublicBytes().
func (kp *mlkemKeyPair) Encapsulate(peerPublic []byte) (ciphertext, sharedSecret []byte, err error) {
	pk, err := unpackMLKEMPublicKey(peerPublic)
	if err != nil {
		return nil, nil, err
	}
	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, spdmerr.Wrap(spdmerr.CryptoError, "ml-kem-768 seed generation failed", err)
	}
	ct := make([]byte, mlkem768.CiphertextSize)
	ss := make([]byte, mlkem768.SharedKeySize)
	pk.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

func unpackMLKEMPublicKey(b []byte) (*mlkem768.PublicKey, error) {
	if len(b) != mlkem768.PublicKeySize {
		return nil, spdmerr.New(spdmerr.InvalidMsgField, "bad ml-kem-768 public key length").
			WithDetail("want", mlkem768.PublicKeySize).WithDetail("have", len(b))
	}
	pk := new(mlkem768.PublicKey)
	pk.Unpack(b)
	return pk, nil
}

var _ sdkcrypto.KEMKeyPair = (*mlkemKeyPair)(nil)
