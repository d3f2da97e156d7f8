//go:build hashed_transcript

package transcript

import (
	sdkcrypto "github.com/openspdm/spdm-go/crypto"
	"github.com/openspdm/spdm-go/protocol"
)

// MaxMessageBufferSize bounds the logical byte count a HashContext will
// accept, tracked even though no raw bytes are retained, so the fatal
// BufferFull behavior matches the full-buffer build exactly.
const MaxMessageBufferSize = protocol.MaxMessageBufferSize

// HashContext is the incremental-hash transcript backing: it retains no
// raw bytes, only a running hash state via the crypto registry's hash
// provider. Selected by the hashed_transcript build tag, generalizing the
// original implementation's "hashed-transcript-data" build feature.
type HashContext struct {
	algo   protocol.BaseHashAlgo
	ctx    sdkcrypto.HashContext
	nbytes int
}

func newAccumulator(algo protocol.BaseHashAlgo) Accumulator {
	return &HashContext{algo: algo}
}

// Append feeds data into the running hash, initializing the underlying
// hash context lazily on first use.
func (h *HashContext) Append(data []byte) error {
	if h.nbytes+len(data) > MaxMessageBufferSize {
		return ErrBufferFull
	}
	if h.ctx == nil {
		ctx, err := sdkcrypto.Hash().CtxInit(h.algo)
		if err != nil {
			return err
		}
		h.ctx = ctx
	}
	h.ctx.Update(data)
	h.nbytes += len(data)
	return nil
}

// Reset clears the hash context back to empty.
func (h *HashContext) Reset() {
	h.ctx = nil
	h.nbytes = 0
}

// Len returns the logical byte count fed to the hash since the last Reset.
func (h *HashContext) Len() int { return h.nbytes }

// Digest finalizes a clone of the current hash state, leaving the running
// context usable for further Append calls. algo is ignored: the hash
// family was fixed when the context was first initialized in Append.
func (h *HashContext) Digest(algo protocol.BaseHashAlgo) ([]byte, error) {
	if h.ctx == nil {
		ctx, err := sdkcrypto.Hash().CtxInit(h.algo)
		if err != nil {
			return nil, err
		}
		return ctx.Clone().Finalize(), nil
	}
	return h.ctx.Clone().Finalize(), nil
}
