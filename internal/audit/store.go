package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	_, err = db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(organization_id, user_id, action, resource_type, resource_id, metadata, source)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		var resourceType *string
		if e.ResourceType != "" {
			resourceType = &e.ResourceType
		}

		args = append(args, e.OrganizationID, e.UserID, e.Action, resourceType, e.ResourceID, metaJSON, e.Source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	Action       *string
	ResourceType *string
	UserID       *uuid.UUID
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// Record is a stored audit event.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID *uuid.UUID      `json:"organization_id"`
	UserID         *uuid.UUID      `json:"user_id"`
	Action         string          `json:"action"`
	ResourceType   *string         `json:"resource_type"`
	ResourceID     *uuid.UUID      `json:"resource_id"`
	Metadata       json.RawMessage `json:"metadata"`
	Source         string          `json:"source"`
	CreatedAt      time.Time       `json:"created_at"`
}

// buildListQuery constructs a scoped SELECT for audit events.
func buildListQuery(s scope.Scope, p ListEventsParams) *database.Query {
	q := database.Select("audit_events",
		"id", "organization_id", "user_id", "action", "resource_type",
		"resource_id", "metadata", "source", "created_at")

	if p.Action != nil {
		q.Eq("action", *p.Action)
	}
	if p.ResourceType != nil {
		q.Eq("resource_type", *p.ResourceType)
	}
	if p.UserID != nil {
		q.Eq("user_id", *p.UserID)
	}
	if p.Source != nil {
		q.Eq("source", *p.Source)
	}
	if p.After != nil {
		q.Where("created_at", ">", *p.After)
	}
	if p.Before != nil {
		q.Where("created_at", "<", *p.Before)
	}

	return scope.Apply(q, s).OrderBy("created_at DESC").Limit(p.Limit)
}

// ListEvents returns events visible under s, newest first.
func (s *Store) ListEvents(ctx context.Context, db database.Querier, sc scope.Scope, p ListEventsParams) ([]Record, error) {
	sql, args, err := buildListQuery(sc, p).Build()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.UserID, &r.Action, &r.ResourceType,
			&r.ResourceID, &r.Metadata, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return records, nil
}
