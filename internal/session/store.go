package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store provides SQLite-backed persistence for the current session.
// There is a single slot: saving replaces whatever was stored before.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates the table if it
// doesn't exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := NewStoreFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromDB wraps an already opened database.
func NewStoreFromDB(db *sql.DB) (*Store, error) {
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS session (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		id TEXT NOT NULL,
		token TEXT NOT NULL,
		user_json TEXT NOT NULL,
		saved_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Save stores token and user, replacing any previous session.
// The token format is not validated.
func (s *Store) Save(token string, user User) (*Session, error) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO session (slot, id, token, user_json, saved_at, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		id, token, string(userJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	u := user
	return &Session{
		ID:        id,
		Token:     token,
		User:      &u,
		SavedAt:   now,
		UpdatedAt: now,
	}, nil
}

// Read returns the stored session. Any storage or parse failure yields the
// absent session rather than an error.
func (s *Store) Read() Session {
	row := s.db.QueryRow(
		`SELECT id, token, user_json, saved_at, updated_at
		 FROM session WHERE slot = 1`,
	)

	var (
		sess     Session
		userJSON string
	)
	if err := row.Scan(&sess.ID, &sess.Token, &userJSON, &sess.SavedAt, &sess.UpdatedAt); err != nil {
		return Session{}
	}
	if sess.Token == "" {
		return Session{}
	}

	var user *User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil || user == nil {
		return Session{}
	}
	sess.User = user

	return sess
}

// Clear removes the stored session.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a token is stored.
func (s *Store) IsAuthenticated() bool {
	return !s.Read().IsZero()
}

// Token returns the stored bearer token or "".
func (s *Store) Token() string {
	return s.Read().Token
}

// UpdateUser replaces the cached profile, keeping the token.
func (s *Store) UpdateUser(user User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	result, err := s.db.Exec(
		`UPDATE session SET user_json = ?, updated_at = ?
		 WHERE slot = 1 AND token != ''`,
		string(userJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update session user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNoSession
	}

	return nil
}
