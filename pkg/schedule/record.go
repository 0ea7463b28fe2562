package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultRecordsBucket is the bucket StoreRecorder writes to by default.
const DefaultRecordsBucket = "scheduled_jobs"

// Record describes one execution of a task.
type Record struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
	Name  string     `json:"name"`
	Error string     `json:"error,omitempty"`
	ID    uuid.UUID  `json:"id"`
}

func newRecord(name string) Record {
	return Record{
		ID:    uuid.Must(uuid.NewV7()),
		Name:  name,
		Start: time.Now(),
	}
}

// Finished reports whether the execution has ended.
func (r Record) Finished() bool {
	return r.End != nil
}

// Failed reports whether the execution ended with an error.
func (r Record) Failed() bool {
	return r.End != nil && r.Error != ""
}

// Duration returns the execution time, or zero while it is still running.
func (r Record) Duration() time.Duration {
	if r.End == nil {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Recorder persists execution records.
// Started is called before work runs and Finished after it returns.
// Errors are logged by the scheduler and otherwise ignored.
type Recorder interface {
	Started(ctx context.Context, r Record) error
	Finished(ctx context.Context, r Record) error
}

// Bucket is the store StoreRecorder writes to. kv.Store implements it.
type Bucket interface {
	Put(bucket, key string, value []byte) error
	ForEach(bucket string, fn func(key string, value []byte) error) error
	DeleteFunc(bucket string, match func(key string, value []byte) bool) (int, error)
}

// StoreRecorder keeps records as JSON documents keyed by record id.
// Ids are UUIDv7, so iteration order is start order.
type StoreRecorder struct {
	store  Bucket
	bucket string
}

// NewStoreRecorder creates a recorder writing to bucket in store.
// An empty bucket name selects DefaultRecordsBucket.
func NewStoreRecorder(store Bucket, bucket string) *StoreRecorder {
	if bucket == "" {
		bucket = DefaultRecordsBucket
	}
	return &StoreRecorder{store: store, bucket: bucket}
}

// Started stores the record of a starting execution.
func (s *StoreRecorder) Started(ctx context.Context, r Record) error {
	return s.put(r)
}

// Finished overwrites the record with its final state.
func (s *StoreRecorder) Finished(ctx context.Context, r Record) error {
	return s.put(r)
}

func (s *StoreRecorder) put(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.store.Put(s.bucket, r.ID.String(), data)
}

// Records returns all stored records in start order.
// A missing bucket yields no records.
func (s *StoreRecorder) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.store.ForEach(s.bucket, func(_ string, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Prune removes finished records that ended before the cutoff, together
// with entries that no longer decode as a Record.
func (s *StoreRecorder) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.store.DeleteFunc(s.bucket, func(_ string, value []byte) bool {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return true
		}
		return r.End != nil && r.End.Before(before)
	})
}
