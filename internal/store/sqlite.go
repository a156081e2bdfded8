package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so that lexical order in SQL matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const memoryPath = ":memory:"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != memoryPath {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction. With a single pooled connection every
// statement inside fn must go through tx, never s.db.
func (s *SQLiteStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- Users ---

func (s *SQLiteStore) CreateUser(u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO users (id, name, email, role, class_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Role, nullString(u.ClassID), formatTime(u.CreatedAt))
	if err != nil {
		return mapWriteErr("inserting user", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(id string) (*User, error) {
	var u User
	var classID sql.NullString
	var createdAt string
	err := s.db.QueryRow(`SELECT id, name, email, role, class_id, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &classID, &createdAt)
	if err != nil {
		return nil, mapReadErr("user", err)
	}
	u.ClassID = classID.String
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// --- Credentials ---

func (s *SQLiteStore) GetCredential(userID, provider string) (*Credential, error) {
	var c Credential
	var expiresAt, refreshExpiresIn sql.NullInt64
	err := s.db.QueryRow(`SELECT user_id, provider, provider_account_id, access_token, refresh_token,
		expires_at, refresh_token_expires_in, token_type, scope
		FROM credentials WHERE user_id = ? AND provider = ? LIMIT 1`, userID, provider).
		Scan(&c.UserID, &c.Provider, &c.ProviderAccountID, &c.AccessToken, &c.RefreshToken,
			&expiresAt, &refreshExpiresIn, &c.TokenType, &c.Scope)
	if err != nil {
		return nil, mapReadErr("credential", err)
	}
	c.ExpiresAt = int64Ptr(expiresAt)
	c.RefreshTokenExpiresIn = int64Ptr(refreshExpiresIn)
	return &c, nil
}

func (s *SQLiteStore) SaveCredential(c *Credential) error {
	_, err := s.db.Exec(`INSERT INTO credentials (user_id, provider, provider_account_id, access_token,
		refresh_token, expires_at, refresh_token_expires_in, token_type, scope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			provider_account_id = excluded.provider_account_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			refresh_token_expires_in = excluded.refresh_token_expires_in,
			token_type = excluded.token_type,
			scope = excluded.scope`,
		c.UserID, c.Provider, c.ProviderAccountID, c.AccessToken, c.RefreshToken,
		nullInt64(c.ExpiresAt), nullInt64(c.RefreshTokenExpiresIn), c.TokenType, c.Scope)
	if err != nil {
		return mapWriteErr("saving credential", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateCredentialTokens(userID, provider string, t TokenUpdate) error {
	res, err := s.db.Exec(`UPDATE credentials SET access_token = ?, refresh_token = ?, expires_at = ?,
		refresh_token_expires_in = ? WHERE user_id = ? AND provider = ?`,
		t.AccessToken, t.RefreshToken, nullInt64(t.ExpiresAt), nullInt64(t.RefreshTokenExpiresIn), userID, provider)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	return requireAffected(res, "credential")
}

func (s *SQLiteStore) DeleteCredentials(userID, provider string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM credentials WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		return 0, fmt.Errorf("deleting credentials: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(sess *Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO sessions (token_hash, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.TokenHash, sess.UserID, formatTime(sess.ExpiresAt), formatTime(sess.CreatedAt))
	if err != nil {
		return mapWriteErr("storing session", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(tokenHash string) (*Session, error) {
	var sess Session
	var expiresAt, createdAt string
	err := s.db.QueryRow(`SELECT token_hash, user_id, expires_at, created_at FROM sessions WHERE token_hash = ?`, tokenHash).
		Scan(&sess.TokenHash, &sess.UserID, &expiresAt, &createdAt)
	if err != nil {
		return nil, mapReadErr("session", err)
	}
	sess.ExpiresAt = parseTime(expiresAt)
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

func (s *SQLiteStore) DeleteExpiredSessions(now time.Time) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE expires_at < ?", formatTime(now)); err != nil {
		return fmt.Errorf("cleaning sessions: %w", err)
	}
	return nil
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func mapReadErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("reading %s: %w", what, err)
}

func mapWriteErr(op string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "PRIMARY KEY") {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
