package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"vitalsops/internal/telemetry"
)

// FileWriter appends readings to a JSONL file that the replay transport can
// play back.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write logs a single reading.
func (f *FileWriter) Write(r telemetry.SoldierReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(r)
}

// WriteBatch logs multiple readings.
func (f *FileWriter) WriteBatch(rows []telemetry.SoldierReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
