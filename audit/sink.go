// Package audit records best-effort, append-only session lifecycle and
// measurement-retrieval events for operational forensics. It plays no
// part in SPDM protocol correctness: a responder or requester engine
// that cannot reach its audit sink still completes the exchange
// normally (spec.md §3.1 "Audit record").
package audit

import (
	"context"
	"time"
)

// EventType names the kind of occurrence being recorded.
type EventType string

const (
	// SessionEstablished is recorded once a session's application
	// secrets have been derived (FINISH/PSK_FINISH succeeded).
	SessionEstablished EventType = "session_established"
	// SessionRenegotiated is recorded on a successful KEY_UPDATE.
	SessionRenegotiated EventType = "session_renegotiated"
	// SessionTornDown is recorded when END_SESSION removes a session; a
	// session removed after a failed handshake is not recorded.
	SessionTornDown EventType = "session_torn_down"
	// MeasurementRetrieved is recorded on a successful GET_MEASUREMENTS.
	MeasurementRetrieved EventType = "measurement_retrieved"
)

// Event is one audit record.
type Event struct {
	Type      EventType
	SessionID uint32
	Role      string // "requester" or "responder"
	Detail    string
	Timestamp time.Time
}

// Sink receives audit events. Record must never block the caller for
// long and must never propagate a failure into the protocol state
// machine -- it is fire-and-forget from the engine's perspective.
type Sink interface {
	Record(ctx context.Context, ev Event)
	Close() error
}

// NoopSink discards every event. It is the default sink when audit
// persistence is disabled in configuration.
type NoopSink struct{}

// Record implements Sink.
func (NoopSink) Record(context.Context, Event) {}

// Close implements Sink.
func (NoopSink) Close() error { return nil }
