package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemoryTraceStore keeps the most recent call traces in a bounded ring.
type MemoryTraceStore struct {
	mu     sync.Mutex
	traces []*CallTrace
	limit  int
}

// NewMemoryTraceStore creates a store holding at most limit traces.
func NewMemoryTraceStore(limit int) *MemoryTraceStore {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryTraceStore{limit: limit}
}

// StoreCallTrace implements TraceStore.
func (s *MemoryTraceStore) StoreCallTrace(trace *CallTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traces = append(s.traces, trace)
	if len(s.traces) > s.limit {
		s.traces = s.traces[len(s.traces)-s.limit:]
	}
	return nil
}

// Recent returns the stored traces, oldest first.
func (s *MemoryTraceStore) Recent() []*CallTrace {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*CallTrace, len(s.traces))
	copy(out, s.traces)
	return out
}

// FileTraceStore appends traces as JSON lines, one call per line.
type FileTraceStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTraceStore creates a JSONL trace store at path, creating parent
// directories as needed.
func NewFileTraceStore(path string) (*FileTraceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	return &FileTraceStore{path: path}, nil
}

// StoreCallTrace implements TraceStore.
func (s *FileTraceStore) StoreCallTrace(trace *CallTrace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
