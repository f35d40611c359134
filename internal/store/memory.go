package store

import (
	"context"
	"sync"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
)

// MemorySink keeps records in memory, for dry runs and tests
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	failFn  func(Record) error
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWhen makes Append fail for records where fn returns a non-nil error
func (s *MemorySink) FailWhen(fn func(Record) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFn = fn
}

// Append validates and stores the record
func (s *MemorySink) Append(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return bridgeerrors.NewPersistenceError("append", err, r.Collection, r.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFn != nil {
		if err := s.failFn(r); err != nil {
			return bridgeerrors.NewPersistenceError("append", err, r.Collection, r.Type)
		}
	}
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of everything appended
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close is a no-op
func (s *MemorySink) Close(context.Context) error {
	return nil
}
