package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists policies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed policy store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, p *Policy) error {
	paramsJSON, err := json.Marshal(p.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO security_policies (id, name, kind, enabled, parameters, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Name, string(p.Kind), p.Enabled, paramsJSON, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to add policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateID
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, enabled, parameters, description, created_at, updated_at
		FROM security_policies
		WHERE id = $1
	`, id)

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) List(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, enabled, parameters, description, created_at, updated_at
		FROM security_policies
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			continue
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM security_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_policies SET enabled = $2, updated_at = $3 WHERE id = $1
	`, id, enabled, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (*Policy, error) {
	var p Policy
	var kind string
	var paramsJSON []byte
	var description sql.NullString

	if err := row.Scan(&p.ID, &p.Name, &kind, &p.Enabled, &paramsJSON, &description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Kind = Kind(kind)
	p.Description = description.String
	p.Parameters = make(map[string]interface{})
	if len(paramsJSON) > 0 {
		_ = json.Unmarshal(paramsJSON, &p.Parameters)
	}
	return &p, nil
}

var _ Store = (*PostgresStore)(nil)
