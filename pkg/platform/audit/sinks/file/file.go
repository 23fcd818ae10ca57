// Package file appends audit records as JSON lines to a local file with
// size-based rotation.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
)

const (
	currentName     = "audit.log"
	rotatedPattern  = "audit-*.log"
	rotatedStampFmt = "20060102T150405.000000000"
)

// Config configures the file sink.
type Config struct {
	Dir      string // directory holding audit.log and rotated files
	MaxSize  int64  // bytes before rotation (default 100MB); <0 disables rotation
	MaxFiles int    // rotated files kept (default 10)
}

// DefaultConfig returns default configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, MaxSize: 100 * 1024 * 1024, MaxFiles: 10}
}

// Sink writes one JSON object per line.
type Sink struct {
	mu       sync.Mutex
	dir      string
	maxSize  int64
	maxFiles int
	now      func() time.Time

	file    *os.File
	size    int64
	encoder *json.Encoder
	closed  bool
}

// New opens (or creates) the current audit file.
func New(cfg Config) (*Sink, error) {
	if cfg.Dir == "" {
		return nil, errors.New("audit file sink requires a directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	s := &Sink{
		dir:      cfg.Dir,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
		now:      time.Now,
	}
	if s.maxSize == 0 {
		s.maxSize = 100 * 1024 * 1024
	}
	if s.maxFiles <= 0 {
		s.maxFiles = 10
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the current file path.
func (s *Sink) Path() string {
	return filepath.Join(s.dir, currentName)
}

func (s *Sink) open() error {
	f, err := os.OpenFile(s.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat audit log file: %w", err)
	}
	s.file = f
	s.size = info.Size()
	s.encoder = json.NewEncoder(&countingWriter{w: f, n: &s.size})
	return nil
}

// Record appends rec, rotating first when the current file is full.
func (s *Sink) Record(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audit file sink: %w", sentinel.ErrClosed)
	}
	if s.maxSize > 0 && s.size >= s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}
	if err := s.encoder.Encode(rec); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func (s *Sink) rotate() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	rotated := filepath.Join(s.dir, "audit-"+s.now().UTC().Format(rotatedStampFmt)+".log")
	if err := os.Rename(s.Path(), rotated); err != nil {
		return err
	}
	if err := s.open(); err != nil {
		return err
	}
	return s.prune()
}

// prune removes the oldest rotated files beyond maxFiles. Rotated names sort
// chronologically.
func (s *Sink) prune() error {
	files, err := filepath.Glob(filepath.Join(s.dir, rotatedPattern))
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}
	slices.Sort(files)
	var errs []error
	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes the file. Later writes fail with sentinel.ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// ReadAll decodes every record in path, oldest first.
func ReadAll(path string) ([]audit.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []audit.Record
	dec := json.NewDecoder(f)
	for {
		var rec audit.Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("decode audit log entry: %w", err)
		}
		records = append(records, rec)
	}
}

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}
