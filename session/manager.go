package session

import (
	"sync"

	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/protocol/spdmerr"
)

// Table is the engine's fixed-capacity session store: protocol.MaxSessions
// slots, linear-scanned by 32-bit session id, with no dynamic allocator
// and no time-based expiry. A session leaves the table only by an
// explicit Remove (END_SESSION or a fatal fault), which zeroizes its key
// material and frees the slot for reuse.
type Table struct {
	mu       sync.RWMutex
	slots    [protocol.MaxSessions]*Session
	hashAlgo protocol.BaseHashAlgo
	cfg      Config
}

// NewTable returns an empty table. hashAlgo is the negotiation-time hash
// used to size each new session's transcript accumulators; cfg is applied
// to every session created through this table.
func NewTable(hashAlgo protocol.BaseHashAlgo, cfg Config) *Table {
	return &Table{hashAlgo: hashAlgo, cfg: cfg}
}

// Create allocates a slot for id. It fails if id is already present or if
// every slot is occupied (spdmerr.BufferFull -- the table has no overflow
// path, matching the fixed-capacity working buffers elsewhere).
func (t *Table) Create(id uint32) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.slots {
		if s != nil && s.ID() == id {
			return nil, spdmerr.New(spdmerr.InvalidStateLocal, "session id already allocated").WithDetail("id", id)
		}
	}

	for i, s := range t.slots {
		if s == nil {
			sess, err := newSession(id, t.hashAlgo, t.cfg)
			if err != nil {
				return nil, err
			}
			t.slots[i] = sess
			return sess, nil
		}
	}
	return nil, spdmerr.New(spdmerr.BufferFull, "session table full").WithDetail("capacity", protocol.MaxSessions)
}

// Get returns the session bound to id, if any.
func (t *Table) Get(id uint32) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.slots {
		if s != nil && s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Remove tears down and frees the slot for id. It is a no-op if id is not
// present.
func (t *Table) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s != nil && s.ID() == id {
			s.Close()
			t.slots[i] = nil
			return
		}
	}
}

// List returns the ids currently occupying a slot.
func (t *Table) List() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []uint32
	for _, s := range t.slots {
		if s != nil {
			ids = append(ids, s.ID())
		}
	}
	return ids
}

// Stats reports slot occupancy.
func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := Stats{TotalSlots: protocol.MaxSessions}
	for _, s := range t.slots {
		if s == nil {
			continue
		}
		st.UsedSlots++
		if s.State() == Established {
			st.EstablishedSlots++
		}
	}
	return st
}

// Close tears down every occupied slot, zeroizing all session key
// material.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s != nil {
			s.Close()
			t.slots[i] = nil
		}
	}
	return nil
}
