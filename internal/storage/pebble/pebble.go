// Package pebble implements kv.Store on an embedded Pebble database.
package pebble

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/go-faster/errors"

	"github.com/xenking/prefab-storefront/internal/kv"
)

// headerSize is the length of the expiry prefix stored before each value.
const headerSize = 8

var _ kv.Store = (*Store)(nil)

// Store persists values on local disk. Each value is prefixed with its
// expiry in unix nanoseconds, zero meaning none; expired values are removed
// when read.
type Store struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	if len(v) < headerSize {
		return nil, fmt.Errorf("pebble get %q: value too short", key)
	}
	if exp := int64(binary.BigEndian.Uint64(v)); exp != 0 && s.now().UnixNano() >= exp {
		if err := s.db.Delete([]byte(key), pebble.NoSync); err != nil {
			return nil, fmt.Errorf("pebble delete expired: %w", err)
		}
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v[headerSize:]...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, headerSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(buf[headerSize:], value)

	if err := s.db.Set([]byte(key), buf, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

// Purge removes every expired entry and returns how many were removed.
func (s *Store) Purge(_ context.Context) (int, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("pebble iter: %w", err)
	}

	now := s.now().UnixNano()
	var expired [][]byte
	for it.First(); it.Valid(); it.Next() {
		v := it.Value()
		if len(v) < headerSize {
			continue
		}
		if exp := int64(binary.BigEndian.Uint64(v)); exp != 0 && now >= exp {
			expired = append(expired, append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Close(); err != nil {
		return 0, fmt.Errorf("pebble iter close: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewBatch()
	defer wb.Close()
	for _, k := range expired {
		if err := wb.Delete(k, nil); err != nil {
			return 0, fmt.Errorf("pebble batch delete: %w", err)
		}
	}
	if err := wb.Commit(pebble.NoSync); err != nil {
		return 0, fmt.Errorf("pebble batch commit: %w", err)
	}
	return len(expired), nil
}
