// Package crypto defines the process-wide, pluggable cryptographic
// primitive registry that the rest of the module calls through. Each
// primitive slot (hash, HMAC, AEAD, asymmetric sign/verify, DHE, certificate
// operations, randomness) holds exactly one provider at a time, swapped
// atomically by Register*. Until a provider is registered, the slot's
// default returns spdmerr.ErrUnsupported.
package crypto

import (
	"sync/atomic"

	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// HashContext is a clonable, incremental hash state. Transcript accumulation
// relies on Clone to fork a context at a point in the transcript (e.g. to
// hash up to but not including the signature field) without disturbing the
// running context.
type HashContext interface {
	Update(data []byte)
	Clone() HashContext
	Finalize() []byte
}

// HashProvider computes digests and incremental hash contexts for the
// negotiated BaseHashAlgo / MeasurementHashAlgo.
type HashProvider interface {
	HashAll(algo protocol.BaseHashAlgo, data []byte) ([]byte, error)
	CtxInit(algo protocol.BaseHashAlgo) (HashContext, error)
}

// HMACProvider computes and verifies keyed message authentication codes,
// used for PSK binding and finished-message MACs.
type HMACProvider interface {
	HMAC(algo protocol.BaseHashAlgo, key, data []byte) ([]byte, error)
	Verify(algo protocol.BaseHashAlgo, key, data, tag []byte) error
}

// AEADProvider wraps and unwraps secured-message records.
type AEADProvider interface {
	Encrypt(algo protocol.AEADAlgo, key, iv, aad, plaintext []byte) ([]byte, error)
	Decrypt(algo protocol.AEADAlgo, key, iv, aad, ciphertext []byte) ([]byte, error)
}

// AsymProvider signs and verifies with the negotiated BaseAsymAlgo, including
// vendor/extended algorithm IDs (secp256k1, ML-DSA).
type AsymProvider interface {
	// Sign produces a signature over message using keyHandle, whose concrete
	// type is provider-specific (e.g. *ecdsa.PrivateKey, ed25519.PrivateKey).
	Sign(algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo, keyHandle any, message []byte) ([]byte, error)
	// Verify checks signature over message against the leaf public key
	// extracted from cert (a DER-encoded X.509 certificate).
	Verify(algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo, cert, message, signature []byte) error
}

// DHEKeyPair is one side of an ephemeral key exchange.
type DHEKeyPair interface {
	PublicBytes() []byte
	SharedSecret(peerPublic []byte) ([]byte, error)
}

// DHEProvider generates ephemeral key-exchange key pairs for the negotiated
// DHEAlgo, including vendor/extended KEMs (ML-KEM).
type DHEProvider interface {
	Generate(algo protocol.DHEAlgo) (DHEKeyPair, error)
}

// KEMKeyPair is the asymmetric counterpart to DHEKeyPair for KEM-style
// exchanges (ML-KEM): the side holding the peer's public key encapsulates a
// shared secret and a ciphertext to return, rather than computing a shared
// secret directly from two public keys. Classic EC/FFDHE providers do not
// implement this; callers feature-detect with a type assertion.
type KEMKeyPair interface {
	DHEKeyPair
	Encapsulate(peerPublic []byte) (ciphertext, sharedSecret []byte, err error)
}

// CertOperationProvider validates certificate chains and locates individual
// certificates within the concatenated chain buffer.
type CertOperationProvider interface {
	// VerifyChain checks signatures and validity across the chain and
	// confirms the root certificate's hash matches rootHash.
	VerifyChain(certs []byte, rootHash []byte, hashAlgo protocol.BaseHashAlgo) error
	// LeafPublicKey extracts the leaf (end-entity) certificate's public key
	// material, suitable for passing to AsymProvider.Verify as cert.
	LeafPublicKey(certs []byte) ([]byte, error)
}

// RandProvider fills buf with cryptographically secure random bytes, used
// for nonces and nonce-derived session parameters.
type RandProvider interface {
	GetRandom(buf []byte) error
}

var (
	hashSlot   atomic.Pointer[HashProvider]
	hmacSlot   atomic.Pointer[HMACProvider]
	aeadSlot   atomic.Pointer[AEADProvider]
	asymSlot   atomic.Pointer[AsymProvider]
	dheSlot    atomic.Pointer[DHEProvider]
	certSlot   atomic.Pointer[CertOperationProvider]
	randSlot   atomic.Pointer[RandProvider]
)

// RegisterHash atomically installs p as the process-wide hash provider.
func RegisterHash(p HashProvider) { hashSlot.Store(&p) }

// RegisterHMAC atomically installs p as the process-wide HMAC provider.
func RegisterHMAC(p HMACProvider) { hmacSlot.Store(&p) }

// RegisterAEAD atomically installs p as the process-wide AEAD provider.
func RegisterAEAD(p AEADProvider) { aeadSlot.Store(&p) }

// RegisterAsym atomically installs p as the process-wide asymmetric
// sign/verify provider.
func RegisterAsym(p AsymProvider) { asymSlot.Store(&p) }

// RegisterDHE atomically installs p as the process-wide key-exchange
// provider.
func RegisterDHE(p DHEProvider) { dheSlot.Store(&p) }

// RegisterCertOperation atomically installs p as the process-wide
// certificate-chain provider.
func RegisterCertOperation(p CertOperationProvider) { certSlot.Store(&p) }

// RegisterRand atomically installs p as the process-wide randomness
// provider.
func RegisterRand(p RandProvider) { randSlot.Store(&p) }

// Hash returns the currently registered HashProvider, or an unsupported
// stub if none has been registered.
func Hash() HashProvider {
	if p := hashSlot.Load(); p != nil {
		return *p
	}
	return unsupportedHash{}
}

// HMAC returns the currently registered HMACProvider, or an unsupported
// stub if none has been registered.
func HMAC() HMACProvider {
	if p := hmacSlot.Load(); p != nil {
		return *p
	}
	return unsupportedHMAC{}
}

// AEAD returns the currently registered AEADProvider, or an unsupported
// stub if none has been registered.
func AEAD() AEADProvider {
	if p := aeadSlot.Load(); p != nil {
		return *p
	}
	return unsupportedAEAD{}
}

// Asym returns the currently registered AsymProvider, or an unsupported
// stub if none has been registered.
func Asym() AsymProvider {
	if p := asymSlot.Load(); p != nil {
		return *p
	}
	return unsupportedAsym{}
}

// DHE returns the currently registered DHEProvider, or an unsupported
// stub if none has been registered.
func DHE() DHEProvider {
	if p := dheSlot.Load(); p != nil {
		return *p
	}
	return unsupportedDHE{}
}

// CertOperation returns the currently registered CertOperationProvider, or
// an unsupported stub if none has been registered.
func CertOperation() CertOperationProvider {
	if p := certSlot.Load(); p != nil {
		return *p
	}
	return unsupportedCertOperation{}
}

// Rand returns the currently registered RandProvider, or an unsupported
// stub if none has been registered.
func Rand() RandProvider {
	if p := randSlot.Load(); p != nil {
		return *p
	}
	return unsupportedRand{}
}

// Reset clears every slot back to unregistered. Intended for test isolation
// between cases that register conflicting providers.
func Reset() {
	hashSlot.Store(nil)
	hmacSlot.Store(nil)
	aeadSlot.Store(nil)
	asymSlot.Store(nil)
	dheSlot.Store(nil)
	certSlot.Store(nil)
	randSlot.Store(nil)
}

type unsupportedHash struct{}

func (unsupportedHash) HashAll(protocol.BaseHashAlgo, []byte) ([]byte, error) {
	return nil, spdmerr.ErrUnsupported
}
func (unsupportedHash) CtxInit(protocol.BaseHashAlgo) (HashContext, error) {
	return nil, spdmerr.ErrUnsupported
}

type unsupportedHMAC struct{}

func (unsupportedHMAC) HMAC(protocol.BaseHashAlgo, []byte, []byte) ([]byte, error) {
	return nil, spdmerr.ErrUnsupported
}
func (unsupportedHMAC) Verify(protocol.BaseHashAlgo, []byte, []byte, []byte) error {
	return spdmerr.ErrUnsupported
}

type unsupportedAEAD struct{}

func (unsupportedAEAD) Encrypt(protocol.AEADAlgo, []byte, []byte, []byte, []byte) ([]byte, error) {
	return nil, spdmerr.ErrUnsupported
}
func (unsupportedAEAD) Decrypt(protocol.AEADAlgo, []byte, []byte, []byte, []byte) ([]byte, error) {
	return nil, spdmerr.ErrUnsupported
}

type unsupportedAsym struct{}

func (unsupportedAsym) Sign(protocol.BaseAsymAlgo, protocol.BaseHashAlgo, any, []byte) ([]byte, error) {
	return nil, spdmerr.ErrUnsupported
}
func (unsupportedAsym) Verify(protocol.BaseAsymAlgo, protocol.BaseHashAlgo, []byte, []byte, []byte) error {
	return spdmerr.ErrUnsupported
}

type unsupportedDHE struct{}

func (unsupportedDHE) Generate(protocol.DHEAlgo) (DHEKeyPair, error) {
	return nil, spdmerr.ErrUnsupported
}

type unsupportedCertOperation struct{}

func (unsupportedCertOperation) VerifyChain([]byte, []byte, protocol.BaseHashAlgo) error {
	return spdmerr.ErrUnsupported
}
func (unsupportedCertOperation) LeafPublicKey([]byte) ([]byte, error) {
	return nil, spdmerr.ErrUnsupported
}

type unsupportedRand struct{}

func (unsupportedRand) GetRandom([]byte) error { return spdmerr.ErrUnsupported }
