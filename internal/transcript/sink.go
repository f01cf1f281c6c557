package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives complete JSON lines, newline included.
type Sink interface {
	Append(line []byte) error
}

// FileSink appends lines to a file. The file and its directory are created
// on first write; no handle is kept between writes.
type FileSink struct {
	path string
	mu   sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Path() string {
	return f.path
}

func (f *FileSink) Append(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	fd, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}

	_, werr := fd.Write(line)
	cerr := fd.Close()
	if werr != nil {
		return fmt.Errorf("write log: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close log: %w", cerr)
	}
	return nil
}

type tee []Sink

// Tee writes every line to all sinks, in order. All sinks are tried even if
// one fails.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Append(line []byte) error {
	var errs []error
	for _, s := range t {
		if err := s.Append(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
