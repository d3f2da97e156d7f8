// Package negotiation holds the write-once outcome of version, capability
// and algorithm negotiation for one connection. Every later exchange reads
// through a Store; none may redefine it (spec.md §3 Data model invariant 3).
package negotiation

import (
	"sync"

	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// Store is the engine context's exclusive owner of negotiated state. Each
// field is set exactly once; a second Set call for an already-set field
// fails with spdmerr.InvalidStateLocal rather than silently overwriting.
type Store struct {
	mu sync.Mutex

	version     protocol.Version
	versionSet  bool

	requesterCap    protocol.Capabilities
	requesterCapSet bool
	responderCap    protocol.Capabilities
	responderCapSet bool

	algorithms    protocol.Algorithms
	algorithmsSet bool
}

// New returns an empty Store with nothing yet negotiated.
func New() *Store {
	return &Store{}
}

// SetVersion records the negotiated version. Calling it twice is rejected.
func (s *Store) SetVersion(v protocol.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versionSet {
		return spdmerr.New(spdmerr.InvalidStateLocal, "version already negotiated").WithDetail("existing", s.version.String())
	}
	if !v.Valid() {
		return spdmerr.New(spdmerr.InvalidParameter, "unknown spdm version").WithDetail("version", v)
	}
	s.version = v
	s.versionSet = true
	return nil
}

// Version returns the negotiated version and whether one has been set.
func (s *Store) Version() (protocol.Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.versionSet
}

// SetCapabilities records both sides' advertised-then-selected capability
// bitfields. Calling it twice is rejected.
func (s *Store) SetCapabilities(requester, responder protocol.Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requesterCapSet || s.responderCapSet {
		return spdmerr.New(spdmerr.InvalidStateLocal, "capabilities already negotiated")
	}
	s.requesterCap = requester
	s.responderCap = responder
	s.requesterCapSet = true
	s.responderCapSet = true
	return nil
}

// Capabilities returns the negotiated requester/responder capability sets
// and whether they have been set.
func (s *Store) Capabilities() (requester, responder protocol.Capabilities, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requesterCap, s.responderCap, s.requesterCapSet && s.responderCapSet
}

// SetAlgorithms records the negotiated algorithm selection. Calling it
// twice is rejected.
func (s *Store) SetAlgorithms(a protocol.Algorithms) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.algorithmsSet {
		return spdmerr.New(spdmerr.InvalidStateLocal, "algorithms already negotiated")
	}
	s.algorithms = a
	s.algorithmsSet = true
	return nil
}

// Algorithms returns the negotiated algorithm selection and whether it has
// been set.
func (s *Store) Algorithms() (protocol.Algorithms, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.algorithms, s.algorithmsSet
}

// Ready reports whether version, capabilities, and algorithms have all
// been negotiated — the precondition for any post-negotiation exchange
// (GET_DIGESTS onward).
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionSet && s.requesterCapSet && s.responderCapSet && s.algorithmsSet
}
