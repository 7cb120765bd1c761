// Package eventlog records per-request pipeline events in Postgres.
//
// Expected schema (migrations are applied externally):
//
//	CREATE TABLE transfer_events (
//	    id          BIGSERIAL PRIMARY KEY,
//	    request_id  TEXT NOT NULL,
//	    event_type  TEXT NOT NULL,
//	    event_data  JSONB NOT NULL DEFAULT '{}',
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of transfer event
type EventType string

const (
	EventTransferStarted    EventType = "transfer_started"
	EventAudioResolved      EventType = "audio_resolved"
	EventTextResolved       EventType = "text_resolved"
	EventTextSanitized      EventType = "text_sanitized"
	EventSynthesisStarted   EventType = "synthesis_started"
	EventSynthesisCompleted EventType = "synthesis_completed"
	EventTransferCompleted  EventType = "transfer_completed"
	EventTransferFailed     EventType = "transfer_failed"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger. A nil pool disables logging.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Enabled reports whether events are persisted.
func (l *Logger) Enabled() bool {
	return l != nil && l.db != nil
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, requestID string, eventType EventType, data map[string]any) error {
	if !l.Enabled() || requestID == "" {
		return nil // Silently skip if no DB or request ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO transfer_events (request_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, requestID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(requestID string, eventType EventType, data map[string]any) {
	if !l.Enabled() || requestID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, requestID, eventType, data)
	}()
}
