package providers

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// vendorAsymProvider extends stdAsymProvider with the vendor/extended
// algorithm IDs: secp256k1 (decred) and ML-DSA-65 / Dilithium mode 3
// (cloudflare/circl). It falls through to the wrapped provider for the
// DMTF base algorithms.
type vendorAsymProvider struct {
	base sdkcrypto.AsymProvider
}

// NewVendorAsymProvider wraps base, adding AsymVendorECDSASecp256k1 and
// AsymVendorMLDSA65 support. base handles every DMTF base algorithm.
func NewVendorAsymProvider(base sdkcrypto.AsymProvider) sdkcrypto.AsymProvider {
	return vendorAsymProvider{base: base}
}

func (p vendorAsymProvider) Sign(algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo, keyHandle any, message []byte) ([]byte, error) {
	switch algo {
	case protocol.AsymVendorECDSASecp256k1:
		priv, ok := keyHandle.(*secp256k1.PrivateKey)
		if !ok {
			return nil, spdmerr.New(spdmerr.InvalidParameter, "secp256k1 sign requires *secp256k1.PrivateKey")
		}
		digest, err := sdkcrypto.Hash().HashAll(hashAlgo, message)
		if err != nil {
			return nil, err
		}
		sig := ecdsa.Sign(priv, digest)
		rBytes := sig.R().Bytes()
		sBytes := sig.S().Bytes()
		out := make([]byte, 64)
		copy(out[:32], rBytes[:])
		copy(out[32:], sBytes[:])
		return out, nil
	case protocol.AsymVendorMLDSA65:
		priv, ok := keyHandle.(*mode3.PrivateKey)
		if !ok {
			return nil, spdmerr.New(spdmerr.InvalidParameter, "ml-dsa-65 sign requires *mode3.PrivateKey")
		}
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(priv, message, sig)
		return sig, nil
	default:
		return p.base.Sign(algo, hashAlgo, keyHandle, message)
	}
}

func (p vendorAsymProvider) Verify(algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo, cert, message, signature []byte) error {
	switch algo {
	case protocol.AsymVendorECDSASecp256k1:
		pub, err := leafPublicKey(cert)
		if err != nil {
			return err
		}
		return verifySecp256k1(pub, hashAlgo, message, signature)
	case protocol.AsymVendorMLDSA65:
		pub, err := leafPublicKey(cert)
		if err != nil {
			return err
		}
		pk, ok := pub.(*mode3.PublicKey)
		if !ok {
			return spdmerr.New(spdmerr.InvalidCert, "certificate key is not ML-DSA-65")
		}
		if !mode3.Verify(pk, message, signature) {
			return spdmerr.New(spdmerr.CryptoError, "ml-dsa-65 signature verification failed")
		}
		return nil
	default:
		return p.base.Verify(algo, hashAlgo, cert, message, signature)
	}
}

func verifySecp256k1(pub any, hashAlgo protocol.BaseHashAlgo, message, signature []byte) error {
	pk, ok := pub.(*secp256k1.PublicKey)
	if !ok {
		return spdmerr.New(spdmerr.InvalidCert, "certificate key is not secp256k1")
	}
	digest, err := sdkcrypto.Hash().HashAll(hashAlgo, message)
	if err != nil {
		return err
	}
	if len(signature) != 64 {
		return spdmerr.New(spdmerr.InvalidMsgField, "bad secp256k1 signature length").
			WithDetail("want", 64).WithDetail("have", len(signature))
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return spdmerr.New(spdmerr.InvalidMsgField, "secp256k1 signature r overflow")
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return spdmerr.New(spdmerr.InvalidMsgField, "secp256k1 signature s overflow")
	}
	sig := ecdsa.NewSignature(&r, &s)
	if !sig.Verify(digest, pk) {
		return spdmerr.New(spdmerr.CryptoError, "secp256k1 signature verification failed")
	}
	return nil
}
