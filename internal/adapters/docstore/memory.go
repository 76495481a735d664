package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	colls map[string]map[string]Document
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{colls: make(map[string]map[string]Document)}
}

// Put implements Writer.
func (m *Memory) Put(ctx context.Context, collection string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[collection]
	if !ok {
		c = make(map[string]Document)
		m.colls[collection] = c
	}
	c[doc.ID] = doc
	return nil
}

// Delete implements Writer.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.colls[collection], id)
	return nil
}

// FetchByID implements Fetcher.
func (m *Memory) FetchByID(ctx context.Context, collection, id string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.colls[collection][id]
	return d, ok, nil
}

// FetchPage implements Fetcher.
func (m *Memory) FetchPage(ctx context.Context, q Query, after *Cursor) (Page, error) {
	if err := q.Validate(); err != nil {
		return Page{}, err
	}
	if err := ctx.Err(); err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}

	conds, err := normalize(q.Where)
	if err != nil {
		return Page{}, err
	}

	m.mu.RLock()
	docs := make([]Document, 0, len(m.colls[q.Collection]))
	for _, d := range m.colls[q.Collection] {
		if after != nil && !after.before(d) {
			continue
		}
		ok, err := match(d, conds)
		if err != nil {
			m.mu.RUnlock()
			return Page{}, err
		}
		if ok {
			docs = append(docs, d)
		}
	}
	m.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
	if len(docs) > q.PageSize {
		docs = docs[:q.PageSize]
	}

	p := Page{Documents: docs, Count: len(docs)}
	if len(docs) > 0 {
		p.LastCursor = cursorOf(docs[len(docs)-1])
	}
	return p, nil
}

// normalize round-trips condition values through JSON so they compare
// equal to decoded body fields.
func normalize(where []Condition) ([]Condition, error) {
	out := make([]Condition, len(where))
	for i, c := range where {
		raw, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: value for %s: %w", ErrInvalidQuery, c.Field, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: value for %s: %w", ErrInvalidQuery, c.Field, err)
		}
		out[i] = Condition{Field: c.Field, Op: c.Op, Value: v}
	}
	return out, nil
}

func match(d Document, conds []Condition) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}
	var body map[string]any
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return false, fmt.Errorf("%w: document %s: %w", ErrBackend, d.ID, err)
	}
	for _, c := range conds {
		field, ok := body[c.Field]
		if !ok {
			return false, nil
		}
		switch c.Op {
		case OpEqual:
			if !reflect.DeepEqual(field, c.Value) {
				return false, nil
			}
		case OpContains:
			arr, ok := field.([]any)
			if !ok {
				return false, nil
			}
			found := false
			for _, el := range arr {
				if reflect.DeepEqual(el, c.Value) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
	}
	return true, nil
}
