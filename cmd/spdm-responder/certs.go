package main

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/openspdm/spdm-go/config"
	"github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/responder"
)

// loadPrivateKey reads a PEM file containing exactly one PKCS#8 (or
// SEC1/PKCS#1) private key and returns the concrete type
// crypto.AsymProvider.Sign expects for algo: *ecdsa.PrivateKey for the
// ECDSA family, *rsa.PrivateKey for RSA.
func loadPrivateKey(path string, algo protocol.BaseAsymAlgo) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	switch algo {
	case protocol.AsymECDSAP256, protocol.AsymECDSAP384, protocol.AsymECDSAP521:
		if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: parse EC key: %w", path, err)
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: PKCS8 key is not ECDSA", path)
		}
		return ecKey, nil

	case protocol.AsymRSASSA2048, protocol.AsymRSASSA3072, protocol.AsymRSASSA4096,
		protocol.AsymRSAPSS2048, protocol.AsymRSAPSS3072, protocol.AsymRSAPSS4096:
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: parse RSA key: %w", path, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: PKCS8 key is not RSA", path)
		}
		return rsaKey, nil

	default:
		return nil, fmt.Errorf("%s: unsupported asymmetric algorithm for key loading", path)
	}
}

// loadCertChain reads a PEM file of one or more concatenated certificates
// (leaf first) and assembles a protocol.CertChainData: the {length,
// reserved} prefix, a root hash over the final certificate under
// hashAlgo, then the concatenated DER certificates (spec.md §4.3
// "certificate chain").
func loadCertChain(path string, hashAlgo protocol.BaseHashAlgo) (protocol.CertChainData, error) {
	var out protocol.CertChainData

	raw, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read cert chain %s: %w", path, err)
	}

	var der []byte
	var lastCert []byte
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		der = append(der, block.Bytes...)
		lastCert = block.Bytes
	}
	if lastCert == nil {
		return out, fmt.Errorf("%s: no CERTIFICATE blocks found", path)
	}

	hashSize := hashAlgo.Size()
	rootHash, err := crypto.Hash().HashAll(hashAlgo, lastCert)
	if err != nil {
		return out, fmt.Errorf("%s: hash root certificate: %w", path, err)
	}

	total := protocol.PrefixLen + hashSize + len(der)
	if total > protocol.MaxCertChainDataSize {
		return out, fmt.Errorf("%s: chain too large (%d bytes)", path, total)
	}
	out.Data[0] = byte(total)
	out.Data[1] = byte(total >> 8)
	copy(out.Data[protocol.PrefixLen:], rootHash)
	copy(out.Data[protocol.PrefixLen+hashSize:], der)
	out.DataSize = uint32(total)
	return out, nil
}

// buildSlots turns the configured responder slots into the engine's
// provisioned Config.Slots array.
func buildSlots(slots []config.SlotConfig, algo protocol.BaseAsymAlgo, hashAlgo protocol.BaseHashAlgo) ([protocol.MaxSlots]*responder.SlotConfig, error) {
	var out [protocol.MaxSlots]*responder.SlotConfig
	for _, s := range slots {
		if int(s.Index) >= protocol.MaxSlots {
			return out, fmt.Errorf("slot index %d out of range (max %d)", s.Index, protocol.MaxSlots-1)
		}
		key, err := loadPrivateKey(s.PrivateKeyPath, algo)
		if err != nil {
			return out, err
		}
		chain, err := loadCertChain(s.CertChainPath, hashAlgo)
		if err != nil {
			return out, err
		}
		out[s.Index] = &responder.SlotConfig{PrivateKey: key, Chain: chain}
	}
	return out, nil
}
