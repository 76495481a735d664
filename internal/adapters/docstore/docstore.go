// Package docstore reads ordered pages of JSON documents from a collection.
//
// Pages are ordered by creation time descending with the document id
// descending as a tie-break, so a Cursor of (createdAt, id) continues a
// listing without gaps or duplicates.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// OrderCreatedAt is the only supported ordering field.
const OrderCreatedAt = "createdAt"

// Op is a condition operator.
type Op string

// Supported operators.
const (
	OpEqual    Op = "=="
	OpContains Op = "array-contains"
)

// Document is one stored record.
type Document struct {
	ID        string
	CreatedAt time.Time
	Body      json.RawMessage
}

// Cursor marks the last document of a page.
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// Condition filters on a top-level field of the document body.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Query selects a page of a collection.
type Query struct {
	Collection string
	Where      []Condition
	OrderField string // empty means OrderCreatedAt
	PageSize   int
}

// Page is the result of FetchPage.
type Page struct {
	Documents  []Document
	LastCursor *Cursor // nil when the page is empty
	Count      int
}

// Fetcher reads from the document store.
type Fetcher interface {
	// FetchPage returns at most q.PageSize documents strictly after the cursor.
	FetchPage(ctx context.Context, q Query, after *Cursor) (Page, error)
	// FetchByID returns one document and whether it exists.
	FetchByID(ctx context.Context, collection, id string) (Document, bool, error)
}

// Writer mutates the document store.
type Writer interface {
	Put(ctx context.Context, collection string, doc Document) error
	Delete(ctx context.Context, collection, id string) error
}

// Store is a Fetcher that can also be written.
type Store interface {
	Fetcher
	Writer
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks q before it reaches a backend.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	if q.PageSize <= 0 {
		return fmt.Errorf("%w: page size %d", ErrInvalidQuery, q.PageSize)
	}
	if q.OrderField != "" && q.OrderField != OrderCreatedAt {
		return fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.OrderField)
	}
	for _, c := range q.Where {
		if !fieldName.MatchString(c.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, c.Field)
		}
		if c.Op != OpEqual && c.Op != OpContains {
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, c.Op)
		}
	}
	return nil
}

// NewDocument encodes v as the body of a document.
func NewDocument(id string, createdAt time.Time, v any) (Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("encode document %s: %w", id, err)
	}
	return Document{ID: id, CreatedAt: createdAt, Body: body}, nil
}

// Decode unmarshals the body of d into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// before reports whether d sorts after the cursor in descending order.
func (c Cursor) before(d Document) bool {
	if !d.CreatedAt.Equal(c.CreatedAt) {
		return d.CreatedAt.Before(c.CreatedAt)
	}
	return d.ID < c.ID
}

func cursorOf(d Document) *Cursor {
	return &Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
}
