package session

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idRe = regexp.MustCompile(`^session_20240102_150405_[0-9a-f]{8}$`)

func TestNewID(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

	a, b := NewID(now), NewID(now)
	assert.Regexp(t, idRe, string(a))
	assert.NotEqual(t, a, b)
}

func TestNewID_UsesUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 1, 2, 20, 34, 5, 0, loc)

	assert.Regexp(t, idRe, string(NewID(now)))
}

func TestRegistry_SetOnce(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.SetID("session_a"))
	assert.ErrorIs(t, r.SetID("session_b"), ErrAlreadySet)
	assert.Equal(t, ID("session_a"), r.ID())

	require.NoError(t, r.SetDialedNumber("+911234"))
	assert.ErrorIs(t, r.SetDialedNumber("+000"), ErrAlreadySet)
	assert.Equal(t, "+911234", r.DialedNumber())

	coord := &struct{ name string }{"coordinator"}
	require.NoError(t, r.SetCoordinator(coord))
	assert.ErrorIs(t, r.SetCoordinator(nil), ErrAlreadySet)
	assert.Same(t, coord, r.Coordinator())
}

func TestRegistry_Start(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

	id, err := r.Start(now)
	require.NoError(t, err)
	assert.Regexp(t, idRe, string(id))

	info := r.Snapshot()
	assert.Equal(t, id, info.ID)
	assert.Equal(t, now, info.StartedAt)

	_, err = r.Start(now)
	assert.ErrorIs(t, err, ErrAlreadySet)
}

func TestRegistry_Tag(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, map[string]any{}, r.Tag(nil))

	require.NoError(t, r.SetID("session_x"))
	require.NoError(t, r.SetDialedNumber("555"))

	ev := r.Tag(map[string]any{"type": "user_msg", "session_id": "override"})
	assert.Equal(t, map[string]any{
		"type":          "user_msg",
		"session_id":    "override",
		"dialed_number": "555",
	}, ev)
}

func TestRegistry_IndependentSessions(t *testing.T) {
	var wg sync.WaitGroup
	ids := make([]ID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := NewRegistry()
			if _, err := r.Start(time.Now()); err == nil {
				ids[i] = r.ID()
			}
		}(i)
	}
	wg.Wait()

	seen := map[ID]bool{}
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	r := NewRegistry()
	ctx := NewContext(context.Background(), r)
	assert.Same(t, r, FromContext(ctx))
}
