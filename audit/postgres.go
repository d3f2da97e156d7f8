package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openspdm/spdm-go/internal/logger"
)

// createTableSQL provisions the audit_events table on first connection.
// Kept minimal: one row per event, no foreign keys, nothing the engine
// itself ever reads back.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         BIGSERIAL PRIMARY KEY,
	event_type TEXT        NOT NULL,
	session_id BIGINT      NOT NULL,
	role       TEXT        NOT NULL,
	detail     TEXT        NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL
)`

const insertEventSQL = `
INSERT INTO audit_events (event_type, session_id, role, detail, recorded_at)
VALUES ($1, $2, $3, $4, $5)`

// PostgresSink is a jackc/pgx/v5-backed Sink. Record enqueues onto a
// bounded channel drained by a single background goroutine so the
// calling engine never blocks on a database round trip; a full queue
// drops the event rather than applying backpressure to the protocol
// state machine.
type PostgresSink struct {
	pool   *pgxpool.Pool
	events chan Event
	done   chan struct{}
	log    logger.Logger
}

// NewPostgresSink connects to dsn, provisions the audit_events table,
// and starts the background drain goroutine. queueSize bounds how many
// events may be buffered before new ones are dropped.
func NewPostgresSink(ctx context.Context, dsn string, queueSize int) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}

	if queueSize <= 0 {
		queueSize = 256
	}
	s := &PostgresSink{
		pool:   pool,
		events: make(chan Event, queueSize),
		done:   make(chan struct{}),
		log:    logger.GetDefaultLogger().WithFields(logger.String("component", "audit")),
	}
	go s.drain()
	return s, nil
}

// Record implements Sink. It never blocks: a full queue drops the event
// and logs a warning instead of applying backpressure to the caller.
func (s *PostgresSink) Record(_ context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("audit queue full, dropping event",
			logger.String("event_type", string(ev.Type)),
			logger.Int("session_id", int(ev.SessionID)))
	}
}

// drain writes queued events to Postgres one at a time until Close
// stops accepting new events and the queue empties.
func (s *PostgresSink) drain() {
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := s.pool.Exec(ctx, insertEventSQL, string(ev.Type), ev.SessionID, ev.Role, ev.Detail, ev.Timestamp)
		cancel()
		if err != nil {
			s.log.Warn("audit insert failed", logger.Error(err), logger.String("event_type", string(ev.Type)))
		}
	}
	close(s.done)
}

// Close stops accepting new events, waits for the queue to drain, and
// closes the connection pool.
func (s *PostgresSink) Close() error {
	close(s.events)
	<-s.done
	s.pool.Close()
	return nil
}
