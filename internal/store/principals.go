// ABOUTME: Principal CRUD on SQLite
// ABOUTME: Principals are the identities bearer tokens resolve to

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const principalColumns = `principal_id, type, display_name, status, created_at, last_seen, metadata_json`

// CreatePrincipal inserts a principal. Returns ErrDuplicatePrincipal if the ID exists.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("principal ID is required")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("invalid principal type %q", p.Type)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("invalid principal status %q", p.Status)
	}

	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID,
		p.Type,
		p.DisplayName,
		p.Status,
		p.CreatedAt.UTC().Format(time.RFC3339),
		formatOptionalTime(p.LastSeen),
		metadata,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicatePrincipal
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Debug("created principal", "id", p.ID, "type", p.Type, "status", p.Status)
	return nil
}

// GetPrincipal retrieves a principal by ID.
// Returns ErrPrincipalNotFound if it doesn't exist.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE principal_id = ?`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return p, nil
}

// ListPrincipals returns principals ordered by creation time, oldest first.
func (s *SQLiteStore) ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + principalColumns + ` FROM principals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, principal_id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	principals := []*Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return principals, nil
}

// UpdatePrincipalStatus changes a principal's status.
func (s *SQLiteStore) UpdatePrincipalStatus(ctx context.Context, id string, status PrincipalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid principal status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE principals SET status = ? WHERE principal_id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating principal status: %w", err)
	}
	if err := requireRow(res, ErrPrincipalNotFound); err != nil {
		return err
	}

	s.logger.Info("updated principal status", "id", id, "status", status)
	return nil
}

// UpdatePrincipalLastSeen records when a principal last authenticated.
func (s *SQLiteStore) UpdatePrincipalLastSeen(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE principals SET last_seen = ? WHERE principal_id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating principal last_seen: %w", err)
	}
	return requireRow(res, ErrPrincipalNotFound)
}

// DeletePrincipal removes a principal with its roles and token records.
func (s *SQLiteStore) DeletePrincipal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE principal_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}
	if err := requireRow(res, ErrPrincipalNotFound); err != nil {
		return err
	}

	s.logger.Info("deleted principal", "id", id)
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var (
		p            Principal
		createdAtStr string
		lastSeenStr  sql.NullString
		metadataStr  sql.NullString
	)
	err := row.Scan(&p.ID, &p.Type, &p.DisplayName, &p.Status, &createdAtStr, &lastSeenStr, &metadataStr)
	if err != nil {
		return nil, err
	}

	p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.LastSeen, err = parseOptionalTime(lastSeenStr); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	if metadataStr.Valid {
		if err := json.Unmarshal([]byte(metadataStr.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata: %w", err)
		}
	}
	return &p, nil
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return nullString(string(data)), nil
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseOptionalTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// requireRow returns notFound when res affected no rows.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
