package protocol

// Buffer-size and fixed-capacity constants. All working buffers are
// fixed-size; overflow is a fatal per-exchange error rather than a
// reallocation.
const (
	// MaxMessageBufferSize bounds every transcript accumulator and every
	// send/receive scratch buffer.
	MaxMessageBufferSize = 0x1200

	// MaxCertChainDataSize bounds the runtime cert-chain buffer per slot.
	MaxCertChainDataSize = 0x1000

	// MaxCertPortionLen bounds how many cert-chain bytes a single
	// GET_CERTIFICATE request may ask for.
	MaxCertPortionLen = 1024

	// MaxMeasurementRecordSize bounds the assembled measurement record.
	MaxMeasurementRecordSize = 0x800

	// MaxSlots is the number of provisionable certificate-chain slots.
	MaxSlots = 8

	// MaxSessions is the fixed capacity of the session table.
	MaxSessions = 4

	// NonceSize is the length in bytes of every SPDM nonce field.
	NonceSize = 32

	// MaxErrorRetries bounds the flattened ResponseNotReady retry loop.
	MaxErrorRetries = 4
)

// Reserved/forbidden session identifiers.
const (
	SessionIDNone     uint32 = 0
	SessionIDReserved uint32 = 0xFFFFFFFF
)
