package kv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/dmitrymomot/kiln/pkg/logger"
)

// Store is a bucketed key/value store backed by a single bbolt file.
// It is safe for concurrent use.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens (or creates) the store file at path, creating parent
// directories as needed.
func Open(path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNope()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Join(ErrFailedToOpen, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: o.timeout,
		NoSync:  !o.syncWrites,
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToOpen, err)
	}

	o.logger.Debug("kv store opened", slog.String("path", path), slog.Bool("sync_writes", o.syncWrites))
	return &Store{db: db, logger: o.logger}, nil
}

// Put stores value under key in bucket, creating the bucket if needed.
func (s *Store) Put(bucket, key string, value []byte) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Get returns a copy of the value stored under key.
// Returns ErrNotFound if the bucket or key does not exist.
func (s *Store) Get(bucket, key string) ([]byte, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Delete removes key from bucket. Missing keys are not an error.
func (s *Store) Delete(bucket, key string) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// ForEach calls fn for every key in bucket in key order.
// The value slice is only valid during the call.
func (s *Store) ForEach(bucket string, fn func(key string, value []byte) error) error {
	if bucket == "" {
		return ErrEmptyBucket
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// DeleteFunc removes every entry of bucket for which match returns true
// and reports how many were removed.
func (s *Store) DeleteFunc(bucket string, match func(key string, value []byte) bool) (int, error) {
	if bucket == "" {
		return 0, ErrEmptyBucket
	}

	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		var keys [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if match(string(k), v) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	return deleted, err
}

// Flush durably commits all writes made so far.
func (s *Store) Flush() error {
	if err := s.db.Sync(); err != nil {
		return errors.Join(ErrFailedToFlush, err)
	}
	s.logger.Debug("kv store flushed", slog.String("path", s.db.Path()))
	return nil
}

// Close flushes and closes the store file.
func (s *Store) Close() error {
	return errors.Join(s.Flush(), s.db.Close())
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// PutJSON stores v encoded as JSON.
func PutJSON(s *Store, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	return s.Put(bucket, key, data)
}

// GetJSON decodes the JSON value stored under key into T.
func GetJSON[T any](s *Store, bucket, key string) (T, error) {
	var out T
	data, err := s.Get(bucket, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, errors.Join(ErrInvalidPayload, err)
	}
	return out, nil
}

// Healthcheck returns a health check function that verifies the store
// accepts read transactions. Compatible with health.CheckFunc.
func Healthcheck(s *Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrHealthcheck, err)
		}
		if err := s.db.View(func(*bolt.Tx) error { return nil }); err != nil {
			return errors.Join(ErrHealthcheck, err)
		}
		return nil
	}
}

// Shutdown returns a function that closes the store.
// Use with kiln.ShutdownHook; it runs after the coordinator's flush.
func Shutdown(s *Store) func(ctx context.Context) error {
	return func(context.Context) error {
		return s.Close()
	}
}

func validate(bucket, key string) error {
	if bucket == "" {
		return ErrEmptyBucket
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
