package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("token: virtual user not found")
	ErrInvalidToken = errors.New("token: invalid token")
)

// VirtualUser is one demo identity issued by the credential proxy. The
// plaintext token is returned exactly once at issue time; only its SHA-256
// hash is stored.
type VirtualUser struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists virtual-user token hashes in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the token database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("token: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("token: ping db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS virtual_users (
			id         TEXT PRIMARY KEY,
			label      TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("token: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Issue creates a virtual user and returns it together with the plaintext
// token. The plaintext is not recoverable afterwards.
func (s *Store) Issue(ctx context.Context, label string) (VirtualUser, string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "demo user"
	}

	user := VirtualUser{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return VirtualUser{}, "", fmt.Errorf("token: issue: %w", err)
	}
	plaintext := "vu-" + hex.EncodeToString(secret)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO virtual_users (id, label, token_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Label, hashToken(plaintext), user.CreatedAt,
	)
	if err != nil {
		return VirtualUser{}, "", fmt.Errorf("token: issue: %w", err)
	}

	return user, plaintext, nil
}

// Verify resolves a plaintext token to its virtual user.
func (s *Store) Verify(ctx context.Context, plaintext string) (VirtualUser, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return VirtualUser{}, ErrInvalidToken
	}

	var user VirtualUser
	err := s.db.QueryRowContext(ctx,
		"SELECT id, label, created_at FROM virtual_users WHERE token_hash = ?",
		hashToken(plaintext),
	).Scan(&user.ID, &user.Label, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return VirtualUser{}, ErrInvalidToken
	}
	if err != nil {
		return VirtualUser{}, fmt.Errorf("token: verify: %w", err)
	}
	return user, nil
}

// Revoke deletes a virtual user by id.
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM virtual_users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("token: revoke: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("token: revoke: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all virtual users, newest first.
func (s *Store) List(ctx context.Context) ([]VirtualUser, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, label, created_at FROM virtual_users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("token: list: %w", err)
	}
	defer rows.Close()

	var users []VirtualUser
	for rows.Next() {
		var user VirtualUser
		if err := rows.Scan(&user.ID, &user.Label, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("token: list scan: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
