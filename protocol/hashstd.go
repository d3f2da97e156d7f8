package protocol

import "crypto"

// StdHash maps algo to the stdlib crypto.Hash identifier of the same
// family, for callers (RSA PKCS1v15/PSS) that need the standard registry
// constant rather than a pluggable provider instance.
func (algo BaseHashAlgo) StdHash() crypto.Hash {
	switch algo {
	case HashSHA256:
		return crypto.SHA256
	case HashSHA384:
		return crypto.SHA384
	case HashSHA512:
		return crypto.SHA512
	default:
		return 0
	}
}
