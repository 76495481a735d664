package kvstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Opened is a Storage that can enumerate keys and must be closed.
type Opened interface {
	Storage
	Lister
	io.Closer
}

type nopCloser struct{ *Memory }

func (nopCloser) Close() error { return nil }

// Open builds the named backend. path is used by sqlite, addr by redis.
func Open(ctx context.Context, backend, path, addr string) (Opened, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return nopCloser{NewMemory()}, nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		r, err := OpenRedis(ctx, addr)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, backend)
}
