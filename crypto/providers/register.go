package providers

import sdkcrypto "github.com/openspdm/spdm-go/crypto"

// RegisterDefaults installs the full provider stack into the process-wide
// crypto registry: stdlib primitives for the DMTF base algorithm set, and
// the vendor/extended wrappers for secp256k1, ML-DSA-65 and ML-KEM-768.
// Call once at process start (see internal/cryptoinit).
func RegisterDefaults() {
	sdkcrypto.RegisterHash(NewStdHashProvider())
	sdkcrypto.RegisterHMAC(NewStdHMACProvider())
	sdkcrypto.RegisterAEAD(NewStdAEADProvider())
	sdkcrypto.RegisterAsym(NewVendorAsymProvider(NewStdAsymProvider()))
	sdkcrypto.RegisterDHE(NewVendorDHEProvider(NewStdDHEProvider()))
	sdkcrypto.RegisterCertOperation(NewStdCertOperationProvider())
	sdkcrypto.RegisterRand(NewStdRandProvider())
}
