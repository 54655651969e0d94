package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore mirrors audit events to PostgreSQL so external tooling can
// query the trail without tailing the log file.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, event *Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, severity, message, user_id, agent_id, source_ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.ID,
		event.EventType,
		string(event.Severity),
		event.Message,
		nullable(event.UserID),
		nullable(event.AgentID),
		nullable(event.SourceIP),
		metadataJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, severity, message, user_id, agent_id, source_ip, metadata, created_at
		FROM audit_events
		WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.Since.IsZero() {
		query += " AND created_at >= " + arg(f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND created_at <= " + arg(f.Until)
	}
	if f.EventType != "" {
		query += " AND event_type = " + arg(f.EventType)
	}
	if f.Severity != "" {
		query += " AND severity = " + arg(string(f.Severity))
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Event
	for rows.Next() {
		var e Event
		var userID, agentID, sourceIP sql.NullString
		var metadataJSON []byte
		var createdAt time.Time

		if err := rows.Scan(&e.ID, &e.EventType, &e.Severity, &e.Message, &userID, &agentID, &sourceIP, &metadataJSON, &createdAt); err != nil {
			continue
		}
		e.UserID = userID.String
		e.AgentID = agentID.String
		e.SourceIP = sourceIP.String
		e.Timestamp = createdAt
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &e.Metadata)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
