// Package audit keeps an append-only trail of changes made through the API.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter narrows Query results. OrgID is required.
type Filter struct {
	OrgID      string
	ActorID    string
	EntityType string
	EntityID   string
	Actions    []string
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Trail stores entries in the audit_events table.
type Trail struct {
	db  *sql.DB
	now func() time.Time
}

func NewTrail(db *sql.DB) *Trail {
	return &Trail{db: db, now: time.Now}
}

// Record inserts entry, filling the id and timestamp when absent.
func (t *Trail) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now().UTC()
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (
			id, org_id, actor_id, action, entity_type, entity_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.db.ExecContext(ctx, query,
		entry.ID,
		entry.OrgID,
		nullString(entry.ActorID),
		entry.Action,
		entry.EntityType,
		nullString(entry.EntityID),
		[]byte(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Query returns matching entries newest first along with the total match count.
func (t *Trail) Query(ctx context.Context, filter Filter) ([]Entry, int64, error) {
	where := " WHERE org_id = $1"
	args := []any{filter.OrgID}
	argIdx := 2

	if filter.ActorID != "" {
		where += fmt.Sprintf(" AND actor_id = $%d", argIdx)
		args = append(args, filter.ActorID)
		argIdx++
	}
	if filter.EntityType != "" {
		where += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, filter.EntityType)
		argIdx++
	}
	if filter.EntityID != "" {
		where += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, filter.EntityID)
		argIdx++
	}
	if len(filter.Actions) > 0 {
		where += fmt.Sprintf(" AND action = ANY($%d)", argIdx)
		args = append(args, pq.Array(filter.Actions))
		argIdx++
	}
	if !filter.Start.IsZero() {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Start)
		argIdx++
	}
	if !filter.End.IsZero() {
		where += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.End)
		argIdx++
	}

	var total int64
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count events: %w", err)
	}

	query := `
		SELECT id, org_id, actor_id, action, entity_type, entity_id, details, created_at
		FROM audit_events` + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actorID, entityID sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.OrgID, &actorID, &e.Action, &e.EntityType, &entityID, &details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("audit: scan event: %w", err)
		}
		e.ActorID = actorID.String
		e.EntityID = entityID.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("audit: iterate events: %w", err)
	}
	return entries, total, nil
}

// Log records an action taken by the caller in ctx. Failures are logged and
// never surface to the request.
func Log(ctx context.Context, rec Recorder, logger *logging.Logger, action, entityType, entityID string, details any) {
	if rec == nil {
		return
	}
	orgID, _ := tenancy.OrgIDFromContext(ctx)
	actorID, _ := tenancy.UserIDFromContext(ctx)
	entry := Entry{
		OrgID:      orgID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}
	if err := rec.Record(ctx, entry); err != nil && logger != nil {
		logger.Warn("audit record failed", "org_id", orgID, "action", action, "entity_id", entityID, "error", err)
	}
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
