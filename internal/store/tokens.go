// ABOUTME: Registry of issued tokens keyed by jti, used to revoke tokens before expiry
// ABOUTME: Revocation is a timestamp; expired records can be pruned in bulk

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tokenColumns = `token_id, principal_id, issued_at, expires_at, revoked_at`

// RecordToken stores a newly issued token. The principal must exist.
func (s *SQLiteStore) RecordToken(ctx context.Context, t *IssuedToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issued_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?)`,
		t.ID,
		t.PrincipalID,
		t.IssuedAt.UTC().Format(time.RFC3339),
		t.ExpiresAt.UTC().Format(time.RFC3339),
		formatOptionalTime(t.RevokedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("recording token: %w", err)
	}

	s.logger.Debug("recorded token", "token_id", t.ID, "principal_id", t.PrincipalID)
	return nil
}

// GetToken returns the record for a jti, or ErrNotFound.
func (s *SQLiteStore) GetToken(ctx context.Context, id string) (*IssuedToken, error) {
	t, err := scanToken(s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM issued_tokens WHERE token_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return t, nil
}

// ListTokens returns a principal's tokens, newest first.
func (s *SQLiteStore) ListTokens(ctx context.Context, principalID string) ([]*IssuedToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM issued_tokens WHERE principal_id = ? ORDER BY issued_at DESC, token_id`,
		principalID)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	tokens := []*IssuedToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}
	return tokens, nil
}

// RevokeToken marks a token revoked. Revoking twice keeps the first timestamp.
func (s *SQLiteStore) RevokeToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE issued_tokens SET revoked_at = COALESCE(revoked_at, ?) WHERE token_id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	if err := requireRow(res, ErrNotFound); err != nil {
		return err
	}

	s.logger.Info("revoked token", "token_id", id)
	return nil
}

// RevokePrincipalTokens revokes every live token of a principal and returns
// the IDs that changed.
func (s *SQLiteStore) RevokePrincipalTokens(ctx context.Context, principalID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT token_id FROM issued_tokens WHERE principal_id = ? AND revoked_at IS NULL ORDER BY token_id`,
		principalID)
	if err != nil {
		return nil, fmt.Errorf("listing live tokens: %w", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning token id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating live tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE issued_tokens SET revoked_at = ? WHERE principal_id = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), principalID); err != nil {
		return nil, fmt.Errorf("revoking tokens: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing revocation: %w", err)
	}

	s.logger.Info("revoked principal tokens", "principal_id", principalID, "count", len(ids))
	return ids, nil
}

// DeleteExpiredTokens removes records that expired before the cutoff.
func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM issued_tokens WHERE expires_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func scanToken(row rowScanner) (*IssuedToken, error) {
	var (
		t                   IssuedToken
		issuedAt, expiresAt string
		revokedAt           sql.NullString
	)
	if err := row.Scan(&t.ID, &t.PrincipalID, &issuedAt, &expiresAt, &revokedAt); err != nil {
		return nil, err
	}

	var err error
	if t.IssuedAt, err = time.Parse(time.RFC3339, issuedAt); err != nil {
		return nil, fmt.Errorf("parsing issued_at: %w", err)
	}
	if t.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if t.RevokedAt, err = parseOptionalTime(revokedAt); err != nil {
		return nil, fmt.Errorf("parsing revoked_at: %w", err)
	}
	return &t, nil
}
