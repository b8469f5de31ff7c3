package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playdo-labs/playdo/internal/domain"
	"github.com/playdo-labs/playdo/internal/shared"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// appendLocks serializes appends per conversation id; *sync.Mutex values.
	appendLocks sync.Map

	now func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLite opens (creating if needed) the database at dbPath and ensures the schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Write transactions take the lock up front so concurrent appends queue on
	// busy_timeout instead of failing on lock upgrade.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversation(id),
		sequence_number INTEGER NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		editor_code TEXT NULL,
		stdout TEXT NULL,
		stderr TEXT NULL,
		UNIQUE (conversation_id, sequence_number)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateConversation inserts an empty conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context) (*domain.Conversation, error) {
	now := s.now().UnixMilli()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation (created_at, updated_at) VALUES (?, ?)`, now, now)
	if err != nil {
		return nil, &domain.StorageError{Op: "create conversation", Err: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, &domain.StorageError{Op: "create conversation", Err: err}
	}

	return &domain.Conversation{
		ID:        id,
		CreatedAt: time.UnixMilli(now),
		UpdatedAt: time.UnixMilli(now),
		Messages:  []domain.Message{},
	}, nil
}

func (s *SQLiteStore) lockConversation(id int64) func() {
	v, _ := s.appendLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// AppendMessages appends msgs to a conversation in one transaction.
// SQLITE_BUSY is retried with exponential backoff.
func (s *SQLiteStore) AppendMessages(ctx context.Context, conversationID int64, msgs []domain.Message) (*domain.Conversation, error) {
	if len(msgs) == 0 {
		return nil, domain.NewValidationError("messages", "at least one message is required")
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	for i := 0; ; i++ {
		conv, err := s.appendOnce(ctx, conversationID, msgs)
		if err == nil || !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return conv, err
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("AppendMessages hit SQLITE_BUSY, retrying",
			"conversation_id", conversationID,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return nil, &domain.StorageError{Op: "append messages", Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
}

func (s *SQLiteStore) appendOnce(ctx context.Context, conversationID int64, msgs []domain.Message) (conv *domain.Conversation, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "begin append", Err: err}
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back append", "conversation_id", conversationID, "error", rbErr)
			}
		}
	}()

	var next int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(m.sequence_number) + 1, 0)
		FROM conversation c LEFT JOIN message m ON m.conversation_id = c.id
		WHERE c.id = ?
		GROUP BY c.id`, conversationID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "read next sequence number", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message (conversation_id, sequence_number, role, content, editor_code, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, &domain.StorageError{Op: "prepare message insert", Err: err}
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close message insert statement", "error", closeErr)
		}
	}()

	for i, m := range msgs {
		content, mErr := json.Marshal(m.Content)
		if mErr != nil {
			return nil, &domain.StorageError{Op: "encode message content", Err: mErr}
		}
		if _, err = stmt.ExecContext(ctx,
			conversationID, next+int64(i), string(m.Role), string(content),
			m.EditorCode, m.Stdout, m.Stderr,
		); err != nil {
			return nil, &domain.StorageError{Op: "insert message", Err: err}
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE conversation SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
		s.now().UnixMilli(), conversationID,
	); err != nil {
		return nil, &domain.StorageError{Op: "bump updated_at", Err: err}
	}

	conv, err = loadConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, &domain.StorageError{Op: "commit append", Err: err}
	}
	return conv, nil
}

// GetConversation reconstructs a conversation in a single statement.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	return loadConversation(ctx, s.db, conversationID)
}

func loadConversation(ctx context.Context, q queryer, conversationID int64) (*domain.Conversation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.created_at, c.updated_at,
		       m.sequence_number, m.role, m.content, m.editor_code, m.stdout, m.stderr
		FROM conversation c
		LEFT JOIN message m ON m.conversation_id = c.id
		WHERE c.id = ?
		ORDER BY m.sequence_number ASC`, conversationID)
	if err != nil {
		return nil, &domain.StorageError{Op: "query conversation", Err: err}
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	var conv *domain.Conversation
	for rows.Next() {
		var (
			id, createdAt, updatedAt int64
			seq                      sql.NullInt64
			role, content            sql.NullString
			msg                      domain.Message
		)
		if err := rows.Scan(
			&id, &createdAt, &updatedAt,
			&seq, &role, &content, &msg.EditorCode, &msg.Stdout, &msg.Stderr,
		); err != nil {
			return nil, &domain.StorageError{Op: "scan message row", Err: err}
		}

		if conv == nil {
			conv = &domain.Conversation{
				ID:        id,
				CreatedAt: time.UnixMilli(createdAt),
				UpdatedAt: time.UnixMilli(updatedAt),
				Messages:  []domain.Message{},
			}
		}
		if !seq.Valid {
			continue
		}

		msg.Role = domain.Role(role.String)
		if err := json.Unmarshal([]byte(content.String), &msg.Content); err != nil {
			return nil, &domain.StorageError{
				Op:  "decode message content",
				Err: fmt.Errorf("conversation %d sequence %d: %w", id, seq.Int64, err),
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate messages", Err: err}
	}

	if conv == nil {
		return nil, &domain.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return conv, nil
}

// ListConversationIDs returns all conversation ids in ascending order.
func (s *SQLiteStore) ListConversationIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversation ORDER BY id`)
	if err != nil {
		return nil, &domain.StorageError{Op: "list conversations", Err: err}
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation id rows", "error", closeErr)
		}
	}()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &domain.StorageError{Op: "scan conversation id", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate conversation ids", Err: err}
	}
	return ids, nil
}

const userColumns = `id, username, email, password_hash, is_admin, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsAdmin, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	user.CreatedAt = time.UnixMilli(createdAt)
	user.UpdatedAt = time.UnixMilli(updatedAt)
	return &user, nil
}

func userWriteError(op string, err error) error {
	if shared.IsSQLiteUniqueError(err) {
		field := "username or email"
		switch col := shared.UniqueColumn(err); {
		case strings.HasSuffix(col, ".username"):
			field = "username"
		case strings.HasSuffix(col, ".email"):
			field = "email"
		}
		return &domain.ConflictError{Message: field + " already exists"}
	}
	return &domain.StorageError{Op: op, Err: err}
}

// CreateUser inserts user and fills in its id and timestamps.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	now := s.now()
	user.Email = domain.NormalizeEmail(user.Email)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.IsAdmin,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return userWriteError("create user", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return &domain.StorageError{Op: "create user", Err: err}
	}

	user.ID = id
	user.CreatedAt = time.UnixMilli(now.UnixMilli())
	user.UpdatedAt = user.CreatedAt
	return nil
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "user", ID: arg}
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "scan user row", Err: err}
	}
	return user, nil
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUserWhere(ctx, `id = ?`, id)
}

// GetUserByUsername retrieves a user by exact username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUserWhere(ctx, `username = ?`, username)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUserWhere(ctx, `email = ?`, domain.NormalizeEmail(email))
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, &domain.StorageError{Op: "list users", Err: err}
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user rows", "error", closeErr)
		}
	}()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "scan user row", Err: err}
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate users", Err: err}
	}
	return users, nil
}

// UpdateUser applies a partial update and returns the stored result.
func (s *SQLiteStore) UpdateUser(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error) {
	if update.Empty() {
		return s.GetUser(ctx, id)
	}

	var sets []string
	var args []any
	if update.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *update.Username)
	}
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, domain.NormalizeEmail(*update.Email))
	}
	if update.IsAdmin != nil {
		sets = append(sets, "is_admin = ?")
		args = append(args, *update.IsAdmin)
	}
	if update.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *update.PasswordHash)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UnixMilli(), id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, userWriteError("update user", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, &domain.StorageError{Op: "update user", Err: err}
	}
	if rows == 0 {
		return nil, &domain.NotFoundError{Resource: "user", ID: id}
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return &domain.StorageError{Op: "delete user", Err: err}
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "delete user", Err: err}
	}
	if rows == 0 {
		return &domain.NotFoundError{Resource: "user", ID: id}
	}
	return nil
}
