package protocol

// CertChainData is the runtime representation of one provisioned or
// received certificate chain: a 4-byte length+reserved prefix, a root-hash
// of the negotiated hash size, followed by concatenated DER certificates.
//
// The wire prefix layout is:
//
//	length:     u16  (total bytes of this struct, prefix included)
//	reserved:   u16
//	root_hash:  hash_size bytes
//	certs:      DER-encoded X.509 certificates, concatenated
type CertChainData struct {
	DataSize uint32
	Data     [MaxCertChainDataSize]byte
}

// Bytes returns the populated portion of the chain buffer.
func (c *CertChainData) Bytes() []byte {
	return c.Data[:c.DataSize]
}

// PrefixLen is the fixed {length, reserved} prefix size before the root hash.
const PrefixLen = 4

// RootHash returns the root_hash field given the negotiated hash size, or
// nil if the buffer is too small to contain one.
func (c *CertChainData) RootHash(hashSize int) []byte {
	end := PrefixLen + hashSize
	if int(c.DataSize) < end {
		return nil
	}
	return c.Data[PrefixLen:end]
}

// CertsAfterPrefix returns the DER certificate bytes following the
// {length, reserved, root_hash} prefix, given the negotiated hash size.
func (c *CertChainData) CertsAfterPrefix(hashSize int) []byte {
	start := PrefixLen + hashSize
	if int(c.DataSize) < start {
		return nil
	}
	return c.Data[start:c.DataSize]
}

// Slot holds one provisioned or peer-observed certificate chain, indexed
// 0..MaxSlots-1.
type Slot struct {
	Populated bool
	Chain     CertChainData
}
