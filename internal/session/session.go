// Package session carries per-session correlation state: the session ID,
// the dialed number and the coordinator that owns the session.
package session

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadySet = errors.New("session: value already set")

type ID string

// NewID returns an ID of the form session_20240102_150405_1a2b3c4d.
func NewID(now time.Time) ID {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return ID(fmt.Sprintf("session_%s_%s", now.UTC().Format("20060102_150405"), suffix))
}

// Info is a read-only snapshot of a Registry.
type Info struct {
	ID           ID
	DialedNumber string
	Coordinator  any
	StartedAt    time.Time
}

// Registry holds the state of one session. Every setter succeeds once;
// later calls return ErrAlreadySet and leave the value untouched.
type Registry struct {
	mu sync.RWMutex

	id           ID
	dialedNumber string
	coordinator  any
	startedAt    time.Time

	idSet, dialedSet, coordSet bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Start generates a fresh ID and stores it.
func (r *Registry) Start(now time.Time) (ID, error) {
	id := NewID(now)
	if err := r.set(&r.idSet, func() {
		r.id = id
		r.startedAt = now
	}); err != nil {
		return "", err
	}
	log.Info("Session started", "session", id)
	return id, nil
}

func (r *Registry) SetID(id ID) error {
	err := r.set(&r.idSet, func() {
		r.id = id
		r.startedAt = time.Now()
	})
	if err == nil {
		log.Info("Session ID set", "session", id)
	}
	return err
}

func (r *Registry) SetDialedNumber(number string) error {
	return r.set(&r.dialedSet, func() { r.dialedNumber = number })
}

func (r *Registry) SetCoordinator(c any) error {
	return r.set(&r.coordSet, func() { r.coordinator = c })
}

func (r *Registry) set(flag *bool, assign func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if *flag {
		return ErrAlreadySet
	}
	assign()
	*flag = true
	return nil
}

func (r *Registry) ID() ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *Registry) DialedNumber() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dialedNumber
}

func (r *Registry) Coordinator() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinator
}

func (r *Registry) Snapshot() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Info{
		ID:           r.id,
		DialedNumber: r.dialedNumber,
		Coordinator:  r.coordinator,
		StartedAt:    r.startedAt,
	}
}

// Tag adds session_id and dialed_number to ev. Keys the caller already set
// win. A nil map is allocated.
func (r *Registry) Tag(ev map[string]any) map[string]any {
	if ev == nil {
		ev = make(map[string]any, 2)
	}
	info := r.Snapshot()
	if _, ok := ev["session_id"]; !ok && info.ID != "" {
		ev["session_id"] = string(info.ID)
	}
	if _, ok := ev["dialed_number"]; !ok && info.DialedNumber != "" {
		ev["dialed_number"] = info.DialedNumber
	}
	return ev
}

type ctxKey struct{}

func NewContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the registry stored in ctx, or nil.
func FromContext(ctx context.Context) *Registry {
	r, _ := ctx.Value(ctxKey{}).(*Registry)
	return r
}
