package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteDriver = "sqlite"

var docSchema = []string{
	`CREATE TABLE IF NOT EXISTS docs (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		body       TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS docs_order ON docs (collection, created_at DESC, id DESC)`,
}

// SQLite is a Store keeping JSON documents in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrBackend, path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range docSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: create schema: %w", ErrBackend, err)
		}
	}
	return &SQLite{db: db}, nil
}

// Put implements Writer.
func (s *SQLite) Put(ctx context.Context, collection string, doc Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO docs (collection, id, created_at, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET created_at = excluded.created_at, body = excluded.body`,
		collection, doc.ID, doc.CreatedAt.UnixNano(), string(doc.Body))
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", ErrBackend, collection, doc.ID, err)
	}
	return nil
}

// Delete implements Writer.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM docs WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", ErrBackend, collection, id, err)
	}
	return nil
}

// FetchByID implements Fetcher.
func (s *SQLite) FetchByID(ctx context.Context, collection, id string) (Document, bool, error) {
	var (
		created int64
		body    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, body FROM docs WHERE collection = ? AND id = ?`, collection, id).
		Scan(&created, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("%w: get %s/%s: %w", ErrBackend, collection, id, err)
	}
	return Document{ID: id, CreatedAt: time.Unix(0, created).UTC(), Body: []byte(body)}, true, nil
}

// FetchPage implements Fetcher.
func (s *SQLite) FetchPage(ctx context.Context, q Query, after *Cursor) (Page, error) {
	if err := q.Validate(); err != nil {
		return Page{}, err
	}

	var (
		sb   strings.Builder
		args = []any{q.Collection}
	)
	sb.WriteString(`SELECT id, created_at, body FROM docs WHERE collection = ?`)
	for _, c := range q.Where {
		path := "$." + c.Field
		switch c.Op {
		case OpEqual:
			sb.WriteString(` AND json_extract(body, ?) = ?`)
		case OpContains:
			sb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(body, ?) WHERE json_each.value = ?)`)
		}
		args = append(args, path, c.Value)
	}
	if after != nil {
		n := after.CreatedAt.UnixNano()
		sb.WriteString(` AND (created_at < ? OR (created_at = ? AND id < ?))`)
		args = append(args, n, n, after.ID)
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ?`)
	args = append(args, q.PageSize)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return Page{}, fmt.Errorf("%w: query %s: %w", ErrBackend, q.Collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0, q.PageSize)
	for rows.Next() {
		var (
			id      string
			created int64
			body    string
		)
		if err := rows.Scan(&id, &created, &body); err != nil {
			return Page{}, fmt.Errorf("%w: scan %s: %w", ErrBackend, q.Collection, err)
		}
		docs = append(docs, Document{ID: id, CreatedAt: time.Unix(0, created).UTC(), Body: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("%w: query %s: %w", ErrBackend, q.Collection, err)
	}

	p := Page{Documents: docs, Count: len(docs)}
	if len(docs) > 0 {
		p.LastCursor = cursorOf(docs[len(docs)-1])
	}
	return p, nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
