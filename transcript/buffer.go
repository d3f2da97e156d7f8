//go:build !hashed_transcript

package transcript

import (
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
)

// MaxMessageBufferSize bounds every Buffer accumulator; reaching it is
// fatal for the in-progress exchange (spec.md §4.4).
const MaxMessageBufferSize = protocol.MaxMessageBufferSize

// Buffer is the full-retention transcript backing: it keeps every appended
// byte so a caller can hash arbitrary sub-ranges (e.g. a measurement
// transcript minus its trailing signature) after the fact.
type Buffer struct {
	data []byte
}

func newAccumulator(_ protocol.BaseHashAlgo) Accumulator {
	return &Buffer{data: make([]byte, 0, 256)}
}

// Append extends the buffer, failing with ErrBufferFull if doing so would
// exceed MaxMessageBufferSize.
func (b *Buffer) Append(data []byte) error {
	if len(b.data)+len(data) > MaxMessageBufferSize {
		return ErrBufferFull
	}
	b.data = append(b.data, data...)
	return nil
}

// Reset clears the buffer back to empty.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Len returns the number of bytes currently retained.
func (b *Buffer) Len() int { return len(b.data) }

// Digest hashes the retained bytes under algo via the crypto registry.
func (b *Buffer) Digest(algo protocol.BaseHashAlgo) ([]byte, error) {
	return sdkcrypto.Hash().HashAll(algo, b.data)
}

// Bytes returns the retained byte slice. Callers must not retain it across
// a subsequent Append (the backing array may be reused).
func (b *Buffer) Bytes() []byte { return b.data }

// TrimTrailing returns the retained bytes with the last n bytes removed,
// used to exclude a just-appended signature from the transcript that
// signature covers.
func (b *Buffer) TrimTrailing(n int) []byte {
	if n > len(b.data) {
		return nil
	}
	return b.data[:len(b.data)-n]
}
