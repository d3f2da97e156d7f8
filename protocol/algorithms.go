package protocol

// BaseHashAlgo identifies the negotiated hash used for transcript digests
// and cert chain root-hash anchoring.
type BaseHashAlgo uint32

const (
	HashSHA256 BaseHashAlgo = 1 << iota
	HashSHA384
	HashSHA512
)

// Size returns the digest size in bytes for algo, ground truth for every
// size-variable wire field that depends on the selected hash.
func (algo BaseHashAlgo) Size() int {
	switch algo {
	case HashSHA256:
		return 32
	case HashSHA384:
		return 48
	case HashSHA512:
		return 64
	default:
		return 0
	}
}

func (algo BaseHashAlgo) String() string {
	switch algo {
	case HashSHA256:
		return "SHA-256"
	case HashSHA384:
		return "SHA-384"
	case HashSHA512:
		return "SHA-512"
	default:
		return "unknown"
	}
}

// MeasurementHashAlgo identifies the hash used for individual measurement
// blocks; it may differ from BaseHashAlgo.
type MeasurementHashAlgo = BaseHashAlgo

// BaseAsymAlgo identifies the negotiated asymmetric signature algorithm.
// Bits above the DMTF base range (1<<16 and up) are vendor/extended
// algorithms this engine additionally understands (see SPEC_FULL.md §3.1);
// negotiation only selects one of these if both peers advertised it.
type BaseAsymAlgo uint32

const (
	AsymECDSAP256 BaseAsymAlgo = 1 << iota
	AsymECDSAP384
	AsymECDSAP521
	AsymRSASSA2048
	AsymRSASSA3072
	AsymRSASSA4096
	AsymRSAPSS2048
	AsymRSAPSS3072
	AsymRSAPSS4096

	// Vendor/extended algorithms, grounded on circl and decred libraries.
	AsymVendorECDSASecp256k1 BaseAsymAlgo = 1 << 16
	AsymVendorMLDSA65        BaseAsymAlgo = 1 << 17
)

// Size returns the expected signature size in bytes for algo.
func (algo BaseAsymAlgo) Size() int {
	switch algo {
	case AsymECDSAP256:
		return 64
	case AsymECDSAP384:
		return 96
	case AsymECDSAP521:
		return 132
	case AsymRSASSA2048, AsymRSAPSS2048:
		return 256
	case AsymRSASSA3072, AsymRSAPSS3072:
		return 384
	case AsymRSASSA4096, AsymRSAPSS4096:
		return 512
	case AsymVendorECDSASecp256k1:
		return 64
	case AsymVendorMLDSA65:
		return 3309
	default:
		return 0
	}
}

func (algo BaseAsymAlgo) String() string {
	switch algo {
	case AsymECDSAP256:
		return "ECDSA-P256"
	case AsymECDSAP384:
		return "ECDSA-P384"
	case AsymECDSAP521:
		return "ECDSA-P521"
	case AsymRSASSA2048:
		return "RSASSA-2048"
	case AsymRSASSA3072:
		return "RSASSA-3072"
	case AsymRSASSA4096:
		return "RSASSA-4096"
	case AsymRSAPSS2048:
		return "RSAPSS-2048"
	case AsymRSAPSS3072:
		return "RSAPSS-3072"
	case AsymRSAPSS4096:
		return "RSAPSS-4096"
	case AsymVendorECDSASecp256k1:
		return "VENDOR-ECDSA-secp256k1"
	case AsymVendorMLDSA65:
		return "VENDOR-ML-DSA-65"
	default:
		return "unknown"
	}
}

// DHEAlgo identifies the negotiated (elliptic-curve) Diffie-Hellman
// ephemeral key-agreement group.
type DHEAlgo uint16

const (
	DHEFFDHE2048 DHEAlgo = 1 << iota
	DHEFFDHE3072
	DHEFFDHE4096
	DHESECP256R1
	DHESECP384R1
	DHESECP521R1

	// Vendor/extended: post-quantum KEM, mirroring SPDM 1.3's hybrid/PQC
	// direction, grounded on cloudflare/circl.
	DHEVendorMLKEM768 DHEAlgo = 1 << 12
)

func (algo DHEAlgo) String() string {
	switch algo {
	case DHEFFDHE2048:
		return "FFDHE-2048"
	case DHEFFDHE3072:
		return "FFDHE-3072"
	case DHEFFDHE4096:
		return "FFDHE-4096"
	case DHESECP256R1:
		return "SECP256R1"
	case DHESECP384R1:
		return "SECP384R1"
	case DHESECP521R1:
		return "SECP521R1"
	case DHEVendorMLKEM768:
		return "VENDOR-ML-KEM-768"
	default:
		return "unknown"
	}
}

// AEADAlgo identifies the negotiated record-layer AEAD cipher.
type AEADAlgo uint16

const (
	AEADAES128GCM AEADAlgo = 1 << iota
	AEADAES256GCM
	AEADChaCha20Poly1305
)

// KeySize returns the AEAD key length in bytes.
func (algo AEADAlgo) KeySize() int {
	switch algo {
	case AEADAES128GCM:
		return 16
	case AEADAES256GCM, AEADChaCha20Poly1305:
		return 32
	default:
		return 0
	}
}

// IVSize returns the AEAD nonce length in bytes; all three supported
// algorithms use 12-byte nonces.
func (algo AEADAlgo) IVSize() int { return 12 }

func (algo AEADAlgo) String() string {
	switch algo {
	case AEADAES128GCM:
		return "AES-128-GCM"
	case AEADAES256GCM:
		return "AES-256-GCM"
	case AEADChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "unknown"
	}
}

// KeyScheduleAlgo identifies the negotiated key-derivation schedule. SPDM
// currently defines exactly one.
type KeyScheduleAlgo uint16

const (
	KeyScheduleSPDM KeyScheduleAlgo = 1
)

// MeasurementSpec identifies the measurement block format.
type MeasurementSpec uint8

const (
	MeasurementSpecDMTF MeasurementSpec = 1
)

// Algorithms is the full negotiated algorithm set, write-once per connection.
type Algorithms struct {
	BaseHash        BaseHashAlgo
	MeasurementHash MeasurementHashAlgo
	BaseAsym        BaseAsymAlgo
	DHE             DHEAlgo
	AEAD            AEADAlgo
	KeySchedule     KeyScheduleAlgo
	MeasurementSpec MeasurementSpec
}

// HashSize is ground truth for every hash-sized wire field.
func (a Algorithms) HashSize() int { return a.BaseHash.Size() }

// AsymSize is ground truth for every signature-sized wire field.
func (a Algorithms) AsymSize() int { return a.BaseAsym.Size() }
