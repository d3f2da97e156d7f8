package providers

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"math/big"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// stdAsymProvider signs and verifies with the DMTF base algorithm set
// (ECDSA P-256/384/521, RSA-SSA/PSS) via crypto/ecdsa, crypto/rsa and
// crypto/x509 for leaf-key extraction.
type stdAsymProvider struct{}

// NewStdAsymProvider returns an AsymProvider covering the DMTF base
// algorithm set.
func NewStdAsymProvider() sdkcrypto.AsymProvider { return stdAsymProvider{} }

func (stdAsymProvider) Sign(algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo, keyHandle any, message []byte) ([]byte, error) {
	digest, err := sdkcrypto.Hash().HashAll(hashAlgo, message)
	if err != nil {
		return nil, err
	}
	switch algo {
	case protocol.AsymECDSAP256, protocol.AsymECDSAP384, protocol.AsymECDSAP521:
		priv, ok := keyHandle.(*ecdsa.PrivateKey)
		if !ok {
			return nil, spdmerr.New(spdmerr.InvalidParameter, "ecdsa sign requires *ecdsa.PrivateKey")
		}
		r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "ecdsa sign failed", err)
		}
		return encodeECDSASignature(r, s, (priv.Curve.Params().BitSize+7)/8), nil
	case protocol.AsymRSASSA2048, protocol.AsymRSASSA3072, protocol.AsymRSASSA4096:
		priv, ok := keyHandle.(*rsa.PrivateKey)
		if !ok {
			return nil, spdmerr.New(spdmerr.InvalidParameter, "rsassa sign requires *rsa.PrivateKey")
		}
		sig, err := rsa.SignPKCS1v15(rand.Reader, priv, hashAlgo.StdHash(), digest)
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "rsassa sign failed", err)
		}
		return sig, nil
	case protocol.AsymRSAPSS2048, protocol.AsymRSAPSS3072, protocol.AsymRSAPSS4096:
		priv, ok := keyHandle.(*rsa.PrivateKey)
		if !ok {
			return nil, spdmerr.New(spdmerr.InvalidParameter, "rsapss sign requires *rsa.PrivateKey")
		}
		sig, err := rsa.SignPSS(rand.Reader, priv, hashAlgo.StdHash(), digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.CryptoError, "rsapss sign failed", err)
		}
		return sig, nil
	default:
		return nil, spdmerr.New(spdmerr.InvalidParameter, "unsupported base asym algorithm").WithDetail("algo", algo.String())
	}
}

func (stdAsymProvider) Verify(algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo, cert, message, signature []byte) error {
	digest, err := sdkcrypto.Hash().HashAll(hashAlgo, message)
	if err != nil {
		return err
	}
	pub, err := leafPublicKey(cert)
	if err != nil {
		return err
	}
	switch algo {
	case protocol.AsymECDSAP256, protocol.AsymECDSAP384, protocol.AsymECDSAP521:
		pk, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return spdmerr.New(spdmerr.InvalidCert, "certificate key is not ECDSA")
		}
		r, s, err := decodeECDSASignature(signature, (pk.Curve.Params().BitSize+7)/8)
		if err != nil {
			return err
		}
		if !ecdsa.Verify(pk, digest, r, s) {
			return spdmerr.New(spdmerr.CryptoError, "ecdsa signature verification failed")
		}
		return nil
	case protocol.AsymRSASSA2048, protocol.AsymRSASSA3072, protocol.AsymRSASSA4096:
		pk, ok := pub.(*rsa.PublicKey)
		if !ok {
			return spdmerr.New(spdmerr.InvalidCert, "certificate key is not RSA")
		}
		if err := rsa.VerifyPKCS1v15(pk, hashAlgo.StdHash(), digest, signature); err != nil {
			return spdmerr.Wrap(spdmerr.CryptoError, "rsassa verify failed", err)
		}
		return nil
	case protocol.AsymRSAPSS2048, protocol.AsymRSAPSS3072, protocol.AsymRSAPSS4096:
		pk, ok := pub.(*rsa.PublicKey)
		if !ok {
			return spdmerr.New(spdmerr.InvalidCert, "certificate key is not RSA")
		}
		if err := rsa.VerifyPSS(pk, hashAlgo.StdHash(), digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
			return spdmerr.Wrap(spdmerr.CryptoError, "rsapss verify failed", err)
		}
		return nil
	default:
		return spdmerr.New(spdmerr.InvalidParameter, "unsupported base asym algorithm").WithDetail("algo", algo.String())
	}
}

func leafPublicKey(cert []byte) (any, error) {
	leaf, err := x509.ParseCertificate(cert)
	if err != nil {
		return nil, spdmerr.Wrap(spdmerr.InvalidCert, "leaf certificate parse failed", err)
	}
	return leaf.PublicKey, nil
}

// encodeECDSASignature returns the fixed-width {r||s} encoding SPDM uses for
// ECDSA signatures (no ASN.1 wrapping), each component padded to fieldLen.
func encodeECDSASignature(r, s *big.Int, fieldLen int) []byte {
	out := make([]byte, 2*fieldLen)
	r.FillBytes(out[:fieldLen])
	s.FillBytes(out[fieldLen:])
	return out
}

func decodeECDSASignature(sig []byte, fieldLen int) (*big.Int, *big.Int, error) {
	if len(sig) != 2*fieldLen {
		return nil, nil, spdmerr.New(spdmerr.InvalidMsgField, "bad ecdsa signature length").
			WithDetail("want", 2*fieldLen).WithDetail("have", len(sig))
	}
	r := new(big.Int).SetBytes(sig[:fieldLen])
	s := new(big.Int).SetBytes(sig[fieldLen:])
	return r, s, nil
}

