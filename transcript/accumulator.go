// Package transcript implements the six named byte accumulators
// (message_a/b/c/m/k/f) that every signature and key derivation in the
// protocol is bound to. Two interchangeable backings exist: Buffer retains
// raw bytes, HashContext retains only a running hash. Exactly one backs
// each accumulator per build, selected by the hashed_transcript build tag.
package transcript

import (
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// Accumulator is the common contract both Buffer and HashContext satisfy.
// Append is fatal-for-the-exchange on overflow (returns spdmerr.ErrBufferFull);
// callers must treat that as a hard failure of the in-progress exchange, not
// something to retry against the same accumulator.
type Accumulator interface {
	// Append extends the accumulator with data, or fails with
	// spdmerr.ErrBufferFull if doing so would exceed the configured bound.
	Append(data []byte) error
	// Reset clears the accumulator back to empty.
	Reset()
	// Len returns the number of logical bytes appended since the last Reset.
	// Under hashed-transcript mode this is the byte count fed to the hash,
	// not a retrievable buffer size.
	Len() int
	// Digest returns the hash of everything appended since the last Reset,
	// under algo. Buffer hashes its retained bytes on demand; HashContext
	// finalizes a clone of its already-running state (algo is ignored there
	// since it was fixed at construction, but every accumulator must agree
	// on one algorithm per connection per spec.md §3).
	Digest(algo protocol.BaseHashAlgo) ([]byte, error)
}

// Name identifies one of the six protocol-defined transcript accumulators.
type Name int

const (
	MessageA Name = iota
	MessageB
	MessageC
	MessageM
	MessageK
	MessageF
	numAccumulators
)

func (n Name) String() string {
	switch n {
	case MessageA:
		return "message_a"
	case MessageB:
		return "message_b"
	case MessageC:
		return "message_c"
	case MessageM:
		return "message_m"
	case MessageK:
		return "message_k"
	case MessageF:
		return "message_f"
	default:
		return "unknown"
	}
}

// ErrBufferFull is returned by Accumulator.Append when appending would
// exceed the accumulator's capacity bound.
var ErrBufferFull = spdmerr.ErrBufferFull

// Set holds all six accumulators for one connection (or, for message_k/f,
// one session). newAccumulator is supplied by the build-tag-selected
// constructor in buffer.go or hashcontext.go.
type Set struct {
	accs [numAccumulators]Accumulator
}

// NewSet allocates a fresh Set, one accumulator per name, using the
// build's selected backing (Buffer or HashContext). hashAlgo is only
// consulted under the hashed_transcript build; the full-buffer backing
// ignores it.
func NewSet(hashAlgo protocol.BaseHashAlgo) *Set {
	s := &Set{}
	for i := range s.accs {
		s.accs[i] = newAccumulator(hashAlgo)
	}
	return s
}

// Get returns the accumulator for name.
func (s *Set) Get(name Name) Accumulator {
	return s.accs[name]
}

// Append is shorthand for Get(name).Append(data).
func (s *Set) Append(name Name, data []byte) error {
	return s.accs[name].Append(data)
}

// Reset is shorthand for Get(name).Reset().
func (s *Set) Reset(name Name) {
	s.accs[name].Reset()
}

// RawBytes returns the raw bytes retained for name and true, or false if the
// active backing (HashContext under the hashed_transcript build) never
// retains raw bytes. Signature verification needs the raw transcript, not
// just its digest, since AsymProvider.Verify hashes its message argument
// itself; callers that need to verify a signature under a hash-only build
// must instead carry the signed bytes independently of the Set.
func (s *Set) RawBytes(name Name) ([]byte, bool) {
	b, ok := s.accs[name].(*Buffer)
	if !ok {
		return nil, false
	}
	return b.Bytes(), true
}
