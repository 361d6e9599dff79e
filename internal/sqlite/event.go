package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/event"
)

// AppendEvent inserts evt into the log and sets its sequence number.
func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO events (type, project_id, package_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(evt.Type), evt.ProjectID, evt.PackageID, string(evt.Payload), evt.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event sequence: %w", err)
	}
	evt.Seq = seq
	return nil
}

// ListEvents returns events after opts.AfterSeq in sequence order.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOptions) ([]event.Event, error) {
	query := `
		SELECT seq, type, project_id, package_id, payload, created_at
		FROM events
		WHERE seq > ?
	`
	args := []any{opts.AfterSeq}
	if opts.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, opts.ProjectID)
	}
	query += " ORDER BY seq ASC LIMIT ?"
	args = append(args, limitOrAll(opts.Limit))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			evt     event.Event
			typ     string
			payload string
		)
		if err := rows.Scan(&evt.Seq, &typ, &evt.ProjectID, &evt.PackageID, &payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		evt.Type = event.Type(typ)
		evt.Payload = []byte(payload)
		evt.CreatedAt = evt.CreatedAt.UTC()
		events = append(events, evt)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}
