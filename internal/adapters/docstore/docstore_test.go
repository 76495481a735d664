package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type body struct {
	ID      string   `json:"id"`
	UserID  string   `json:"userId"`
	Members []string `json:"members,omitempty"`
	Public  bool     `json:"public"`
	Score   int      `json:"score"`
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("d%02d", i)
		// d00/d01 and d02/d03 share timestamps to exercise the id tie-break
		created := t0.Add(time.Duration(i/2) * time.Minute)
		b := body{ID: id, UserID: fmt.Sprintf("u%d", i%3), Public: i%2 == 0, Score: i}
		if i < 4 {
			b.Members = []string{"alice", "bob"}
		}
		doc, err := NewDocument(id, created, b)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, "things", doc); err != nil {
			t.Fatal(err)
		}
	}
}

func collect(t *testing.T, f Fetcher, q Query) []string {
	t.Helper()
	var (
		out   []string
		after *Cursor
	)
	for pages := 0; pages < 100; pages++ {
		p, err := f.FetchPage(context.Background(), q, after)
		if err != nil {
			t.Fatalf("fetch page: %v", err)
		}
		if p.Count != len(p.Documents) {
			t.Fatalf("count %d != len %d", p.Count, len(p.Documents))
		}
		for _, d := range p.Documents {
			out = append(out, d.ID)
		}
		if p.Count < q.PageSize {
			return out
		}
		after = p.LastCursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestFetchPageOrdering(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			want := []string{"d09", "d08", "d07", "d06", "d05", "d04", "d03", "d02", "d01", "d00"}
			for _, size := range []int{1, 3, 4, 10, 20} {
				got := collect(t, s, Query{Collection: "things", OrderField: OrderCreatedAt, PageSize: size})
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("page size %d (-want +got):\n%s", size, diff)
				}
			}
		})
	}
}

func TestFetchPageConditions(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			cases := []struct {
				name  string
				where []Condition
				want  []string
			}{
				{"equal string", []Condition{{Field: "userId", Op: OpEqual, Value: "u0"}}, []string{"d09", "d06", "d03", "d00"}},
				{"equal bool", []Condition{{Field: "public", Op: OpEqual, Value: true}}, []string{"d08", "d06", "d04", "d02", "d00"}},
				{"equal number", []Condition{{Field: "score", Op: OpEqual, Value: 7}}, []string{"d07"}},
				{"contains", []Condition{{Field: "members", Op: OpContains, Value: "bob"}}, []string{"d03", "d02", "d01", "d00"}},
				{"contains missing", []Condition{{Field: "members", Op: OpContains, Value: "carol"}}, nil},
				{"combined", []Condition{
					{Field: "members", Op: OpContains, Value: "alice"},
					{Field: "userId", Op: OpEqual, Value: "u1"},
				}, []string{"d01"}},
			}
			for _, tc := range cases {
				got := collect(t, s, Query{Collection: "things", Where: tc.where, PageSize: 2})
				if diff := cmp.Diff(tc.want, got); diff != "" {
					t.Errorf("%s (-want +got):\n%s", tc.name, diff)
				}
			}
		})
	}
}

func TestFetchByIDAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			d, ok, err := s.FetchByID(ctx, "things", "d05")
			if err != nil || !ok {
				t.Fatalf("expected d05, ok=%v err=%v", ok, err)
			}
			var b body
			if err := d.Decode(&b); err != nil || b.Score != 5 {
				t.Fatalf("decode: %+v %v", b, err)
			}
			if !d.CreatedAt.Equal(t0.Add(2 * time.Minute)) {
				t.Errorf("created at %v", d.CreatedAt)
			}

			if err := s.Delete(ctx, "things", "d05"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := s.FetchByID(ctx, "things", "d05"); ok {
				t.Error("expected d05 to be gone")
			}
			if _, ok, _ := s.FetchByID(ctx, "other", "d01"); ok {
				t.Error("collections must not leak into each other")
			}
		})
	}
}

func TestQueryValidation(t *testing.T) {
	bad := []Query{
		{PageSize: 1},
		{Collection: "x"},
		{Collection: "x", PageSize: 1, OrderField: "name"},
		{Collection: "x", PageSize: 1, Where: []Condition{{Field: "a'); DROP", Op: OpEqual, Value: 1}}},
		{Collection: "x", PageSize: 1, Where: []Condition{{Field: "a", Op: "like", Value: 1}}},
	}
	for name, s := range backends(t) {
		for i, q := range bad {
			if _, err := s.FetchPage(context.Background(), q, nil); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("%s case %d: expected ErrInvalidQuery, got %v", name, i, err)
			}
		}
	}
}

func TestRateLimited(t *testing.T) {
	mem := NewMemory()
	seed(t, mem)

	t.Run("passes through when unthrottled", func(t *testing.T) {
		r := NewRateLimited(mem, 0, 0)
		got := collect(t, r, Query{Collection: "things", PageSize: 5})
		if len(got) != 10 {
			t.Fatalf("expected 10 ids, got %d", len(got))
		}
		if _, ok, err := r.FetchByID(context.Background(), "things", "d01"); err != nil || !ok {
			t.Fatalf("fetch by id: ok=%v err=%v", ok, err)
		}
	})

	t.Run("fails when the wait outlives the context", func(t *testing.T) {
		r := NewRateLimited(mem, 0.001, 1)
		ctx := context.Background()
		if _, err := r.FetchPage(ctx, Query{Collection: "things", PageSize: 1}, nil); err != nil {
			t.Fatalf("first read uses the burst: %v", err)
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := r.FetchPage(ctx, Query{Collection: "things", PageSize: 1}, nil)
		if !errors.Is(err, ErrThrottled) {
			t.Fatalf("expected ErrThrottled, got %v", err)
		}
	})
}
