package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal is the required append-only event sink: one newline-delimited
// JSON record per event, written synchronously in issuance order. Unlike
// the relational store it has no degradation flag and is never skipped.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJournal opens (or creates) the append-only event log at path.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes one record. Writes are serialized so concurrent sessions
// interleave whole lines, never partial ones.
func (j *Journal) Append(record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.enc.Encode(record); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
