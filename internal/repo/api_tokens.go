package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"ticketflow/internal/domain"
)

// HashToken returns a stable SHA-256 hex digest for the provided token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIToken stores a hashed token. TokenHash must already contain the hashed value.
func (r Repo) InsertAPIToken(ctx context.Context, t domain.APIToken) error {
	if t.ID == "" {
		return errors.New("id required")
	}
	if t.Owner == "" {
		return errors.New("owner required")
	}
	if t.TokenHash == "" {
		return errors.New("token_hash required")
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_tokens(id,owner,name,token_hash,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Owner, nullable(t.Name), t.TokenHash, t.CreatedAt)
	return err
}

// GetAPITokenByHash returns a token by its hashed value.
func (r Repo) GetAPITokenByHash(ctx context.Context, hash string) (domain.APIToken, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner,COALESCE(name,''),token_hash,created_at FROM api_tokens WHERE token_hash=? LIMIT 1`, hash)
	var t domain.APIToken
	err := row.Scan(&t.ID, &t.Owner, &t.Name, &t.TokenHash, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.APIToken{}, ErrNotFound
	}
	if err != nil {
		return domain.APIToken{}, err
	}
	return t, nil
}

// ListAPITokens returns tokens, optionally filtered by owner.
func (r Repo) ListAPITokens(ctx context.Context, owner string) ([]domain.APIToken, error) {
	query := `SELECT id,owner,COALESCE(name,''),token_hash,created_at FROM api_tokens`
	var args []any
	if owner != "" {
		query += ` WHERE owner=?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []domain.APIToken
	for rows.Next() {
		var t domain.APIToken
		if err := rows.Scan(&t.ID, &t.Owner, &t.Name, &t.TokenHash, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteAPIToken deletes a token by ID.
func (r Repo) DeleteAPIToken(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	_, err := r.DB.ExecContext(ctx, `DELETE FROM api_tokens WHERE id=?`, id)
	return err
}
