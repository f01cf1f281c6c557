// Package transcript persists session events as JSON lines from a single
// background goroutine.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"friday/internal/metrics"
	"friday/pkg/sanitize"
)

const DefaultQueueSize = 1024

var ErrFlushTimeout = errors.New("transcript: flush timed out")

type Option func(*Logger)

// WithQueueSize sets the backlog size above which Enqueue reports overflow.
// The backlog itself is unbounded. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.size = n
		}
	}
}

// Logger decouples event producers from file I/O. Enqueue never blocks on
// the sink and never fails; persistence errors are logged and the event is
// lost. Events reach the sink in Enqueue order.
type Logger struct {
	sink Sink
	size int

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []any
	closed   bool
	overflow bool
	done     chan struct{}
}

func New(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		sink: sink,
		size: DefaultQueueSize,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)

	go l.run()
	return l
}

// Enqueue appends ev to the backlog. Events enqueued after FlushAndStop are
// dropped.
func (l *Logger) Enqueue(ev any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		log.Debug("Transcript logger stopped, dropping event")
		metrics.TranscriptEvent(metrics.Dropped)
		return
	}

	l.pending = append(l.pending, ev)
	if len(l.pending) > l.size {
		metrics.TranscriptEvent(metrics.Overflow)
		if !l.overflow {
			l.overflow = true
			log.Warn("Transcript backlog above limit", "limit", l.size)
		}
	}
	l.cond.Signal()
}

// FlushAndStop stops accepting events and waits up to timeout for the
// worker to drain the backlog. Safe to call more than once.
func (l *Logger) FlushAndStop(timeout time.Duration) error {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return nil
	case <-timer.C:
		log.Warn("Transcript flush timed out", "timeout", timeout, "pending", l.backlog())
		return ErrFlushTimeout
	}
}

// Done is closed once the worker has exited.
func (l *Logger) Done() <-chan struct{} {
	return l.done
}

func (l *Logger) backlog() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Logger) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.pending) == 0 && !l.closed {
			l.cond.Wait()
		}
		batch := l.pending
		l.pending = nil
		if len(batch) <= l.size {
			l.overflow = false
		}
		stop := l.closed && len(batch) == 0
		l.mu.Unlock()

		if stop {
			return
		}
		for _, ev := range batch {
			l.write(ev)
		}
	}
}

func (l *Logger) write(ev any) {
	line, err := Encode(ev)
	if err != nil {
		log.Debug("Failed to encode transcript event", "err", err)
		metrics.TranscriptEvent(metrics.Failed)
		return
	}

	if err := l.sink.Append(line); err != nil {
		log.Debug("Failed to persist transcript event", "err", err)
		metrics.TranscriptEvent(metrics.Failed)
		return
	}
	metrics.TranscriptEvent(metrics.Written)
}

// Encode renders ev as one JSON line terminated by '\n'.
func Encode(ev any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sanitize.Event(ev)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
