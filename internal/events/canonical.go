package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Event is a versioned domain event written to the outbox.
type Event interface {
	EventType() string
}

// Envelope is the transport shape published to queues and brokers.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	OrgID           string          `json:"org_id"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errMissingOrg       = errors.New("events: org id is required")
	errNilEvent         = errors.New("events: event required")
	nowFunc             = time.Now
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append writes evt to the outbox through exec, which is normally the
// transaction that performed the state change.
func Append(ctx context.Context, exec execer, orgID, aggregate string, evt Event) (OutboxEntry, error) {
	if exec == nil {
		return OutboxEntry{}, fmt.Errorf("events: exec required")
	}
	entry, err := newEntry(orgID, aggregate, evt)
	if err != nil {
		return OutboxEntry{}, err
	}
	query := `
		INSERT INTO outbox (id, org_id, aggregate, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := exec.Exec(ctx, query, entry.ID, entry.OrgID, entry.Aggregate, entry.Type, []byte(entry.Payload), entry.CreatedAt); err != nil {
		return OutboxEntry{}, fmt.Errorf("events: append %s: %w", entry.Type, err)
	}
	return entry, nil
}

// Aggregate formats an aggregate key such as "appointment:<id>".
func Aggregate(kind, id string) string {
	return kind + ":" + id
}

func newEntry(orgID, aggregate string, evt Event) (OutboxEntry, error) {
	if strings.TrimSpace(orgID) == "" {
		return OutboxEntry{}, errMissingOrg
	}
	if strings.TrimSpace(aggregate) == "" {
		return OutboxEntry{}, errMissingAggregate
	}
	if evt == nil {
		return OutboxEntry{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return OutboxEntry{}, fmt.Errorf("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return OutboxEntry{
		ID:        uuid.New(),
		OrgID:     strings.TrimSpace(orgID),
		Aggregate: strings.TrimSpace(aggregate),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: nowFunc().UTC(),
	}, nil
}

// EnvelopeFor wraps an outbox entry for publishing.
func EnvelopeFor(entry OutboxEntry) Envelope {
	return Envelope{
		EventID:         entry.ID,
		EventType:       entry.Type,
		OrgID:           entry.OrgID,
		Aggregate:       entry.Aggregate,
		TimestampMicros: entry.CreatedAt.UTC().UnixMicro(),
		Payload:         append([]byte(nil), entry.Payload...),
	}
}
