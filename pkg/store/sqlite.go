package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/model"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	remote_task_id TEXT,
	remote_list_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	doc TEXT NOT NULL -- JSON encoded model.Task
);

CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, created_at);

-- (owner, remote task, remote list) is the pull idempotency key
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_remote
	ON tasks(owner_id, remote_task_id, remote_list_id)
	WHERE remote_task_id IS NOT NULL;
`

// SQLite stores tasks as JSON documents in an embedded SQLite database.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, wrap("open", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, wrap("open", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, wrap("open", fmt.Errorf("failed to ping database: %w", err))
	}
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, wrap("open", fmt.Errorf("%s: %w", pragma, err))
		}
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, wrap("open", fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &SQLite{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return wrap("close", err)
}

func (s *SQLite) FindByRemoteIDs(ctx context.Context, remoteID, remoteListID, ownerID string) (*model.Task, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT doc FROM tasks WHERE owner_id = ? AND remote_task_id = ? AND remote_list_id = ?`,
		ownerID, remoteID, remoteListID)
	task, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, wrap("find by remote ids", err)
}

func (s *SQLite) Get(ctx context.Context, id string) (*model.Task, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT doc FROM tasks WHERE id = ?`, id)
	task, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, wrap("get", err)
}

func (s *SQLite) List(ctx context.Context, ownerID string) ([]*model.Task, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT doc FROM tasks WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanDoc(rows)
		if err != nil {
			return nil, wrap("list", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, wrap("list", rows.Err())
}

func (s *SQLite) Insert(ctx context.Context, task *model.Task) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return wrap("insert", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, remote_task_id, remote_list_id, created_at, updated_at, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.OwnerID,
		nullString(task.RemoteTaskID), nullString(task.RemoteListID),
		task.CreatedAt.UTC().Format(time.RFC3339Nano), task.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(doc))
	return wrap("insert", uniqueErr(err))
}

func (s *SQLite) Save(ctx context.Context, task *model.Task) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save", err)
	}
	defer tx.Rollback()

	stored, err := scanDoc(tx.QueryRowContext(ctx, `SELECT doc FROM tasks WHERE id = ?`, task.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrap("save", err)
	}
	keepRemoteIDs(task, stored)

	doc, err := json.Marshal(task)
	if err != nil {
		return wrap("save", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET owner_id = ?, remote_task_id = ?, remote_list_id = ?, updated_at = ?, doc = ?
		 WHERE id = ?`,
		task.OwnerID, nullString(task.RemoteTaskID), nullString(task.RemoteListID),
		task.UpdatedAt.UTC().Format(time.RFC3339Nano), string(doc), task.ID); err != nil {
		return wrap("save", uniqueErr(err))
	}
	return wrap("save", tx.Commit())
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return wrap("delete", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(row scanner) (*model.Task, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	var task model.Task
	if err := json.Unmarshal([]byte(doc), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task document: %w", err)
	}
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func uniqueErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		if strings.Contains(err.Error(), "remote_task_id") {
			return fmt.Errorf("%w: %v", ErrDuplicateRemote, err)
		}
	}
	return err
}
