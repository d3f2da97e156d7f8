package providers

import (
	"bytes"
	"crypto/x509"

	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

type stdCertOperationProvider struct{}

// NewStdCertOperationProvider returns a CertOperationProvider backed by
// crypto/x509. It parses the concatenated DER chain, verifies each
// certificate's signature against its issuer, and checks the root's digest
// against the provisioned rootHash.
func NewStdCertOperationProvider() sdkcrypto.CertOperationProvider { return stdCertOperationProvider{} }

func parseChain(certs []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := certs
	for len(rest) > 0 {
		cert, err := x509.ParseCertificate(rest)
		if err == nil {
			chain = append(chain, cert)
			break
		}
		// x509.ParseCertificate requires an exact single-cert buffer; walk
		// the ASN.1 length to find the next certificate's start.
		n, perr := asn1SequenceLen(rest)
		if perr != nil {
			return nil, spdmerr.Wrap(spdmerr.InvalidCert, "certificate chain parse failed", err)
		}
		cert, err = x509.ParseCertificate(rest[:n])
		if err != nil {
			return nil, spdmerr.Wrap(spdmerr.InvalidCert, "certificate chain parse failed", err)
		}
		chain = append(chain, cert)
		rest = rest[n:]
	}
	if len(chain) == 0 {
		return nil, spdmerr.New(spdmerr.InvalidCert, "empty certificate chain")
	}
	return chain, nil
}

// asn1SequenceLen returns the total byte length (tag+length+content) of the
// leading DER SEQUENCE in buf, supporting short and long-form lengths.
func asn1SequenceLen(buf []byte) (int, error) {
	if len(buf) < 2 || buf[0] != 0x30 {
		return 0, spdmerr.New(spdmerr.InvalidCert, "expected DER SEQUENCE tag")
	}
	if buf[1]&0x80 == 0 {
		return 2 + int(buf[1]), nil
	}
	numLenBytes := int(buf[1] &^ 0x80)
	if numLenBytes == 0 || 2+numLenBytes > len(buf) {
		return 0, spdmerr.New(spdmerr.InvalidCert, "malformed DER length")
	}
	length := 0
	for _, b := range buf[2 : 2+numLenBytes] {
		length = length<<8 | int(b)
	}
	return 2 + numLenBytes + length, nil
}

func (stdCertOperationProvider) VerifyChain(certs []byte, rootHash []byte, hashAlgo protocol.BaseHashAlgo) error {
	chain, err := parseChain(certs)
	if err != nil {
		return err
	}
	root := chain[len(chain)-1]
	digest, err := sdkcrypto.Hash().HashAll(hashAlgo, root.Raw)
	if err != nil {
		return err
	}
	if !bytes.Equal(digest, rootHash) {
		return spdmerr.New(spdmerr.InvalidCert, "root certificate hash does not match provisioned root")
	}
	for i := len(chain) - 1; i > 0; i-- {
		issuer, subject := chain[i], chain[i-1]
		if err := subject.CheckSignatureFrom(issuer); err != nil {
			return spdmerr.Wrap(spdmerr.InvalidCert, "certificate chain signature check failed", err)
		}
	}
	return nil
}

func (stdCertOperationProvider) LeafPublicKey(certs []byte) ([]byte, error) {
	chain, err := parseChain(certs)
	if err != nil {
		return nil, err
	}
	return chain[0].Raw, nil
}
