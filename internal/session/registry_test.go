package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"repo/branch", "repo/branch"},
		{"../../etc/passwd", "etc/passwd"},
		{"~/secret", "secret"},
		{"/absolute", "absolute"},
		{"a\x00b\nc\rd", "abcd"},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeID(tt.in), "input %q", tt.in)
	}

	for _, empty := range []string{"", "..", "~", "/"} {
		id := SanitizeID(empty)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "input %q gave %q", empty, id)
	}
}

func TestRegistry_GetOrCreateConcurrent(t *testing.T) {
	r := NewRegistry(shellConfig(t, "-c", "sleep 5"))
	defer r.CloseAll()

	const callers = 8
	var wg sync.WaitGroup
	sessions := make([]*Session, callers)
	created := make([]bool, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, c, err := r.GetOrCreate(context.Background(), "shared", 80, 24)
			assert.NoError(t, err)
			sessions[i], created[i] = s, c
		}()
	}
	wg.Wait()

	creates := 0
	for i := range callers {
		assert.Same(t, sessions[0], sessions[i])
		if created[i] {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RemoveAndRecreate(t *testing.T) {
	r := NewRegistry(shellConfig(t, "-c", "sleep 5"))
	defer r.CloseAll()

	s1, created, err := r.GetOrCreate(context.Background(), "main", 100, 30)
	require.NoError(t, err)
	assert.True(t, created)
	cols, rows := s1.Size()
	assert.Equal(t, 100, cols)
	assert.Equal(t, 30, rows)

	assert.True(t, r.Remove("main"))
	assert.False(t, r.Remove("main"))
	assert.True(t, s1.Closed())
	assert.Equal(t, 0, r.Len())

	s2, created, err := r.GetOrCreate(context.Background(), "main", 0, 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotSame(t, s1, s2)
}

func TestRegistry_ForgetsExitedSessions(t *testing.T) {
	r := NewRegistry(shellConfig(t, "-c", "exit 0"))
	defer r.CloseAll()

	s, _, err := r.GetOrCreate(context.Background(), "short", 80, 24)
	require.NoError(t, err)
	<-s.Done()

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := r.Get("short")
	assert.False(t, ok)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry(shellConfig(t, "-c", "sleep 5"))
	defer r.CloseAll()

	for _, id := range []string{"first", "second", "third"} {
		_, _, err := r.GetOrCreate(context.Background(), id, 80, 24)
		require.NoError(t, err)
	}

	var ids []string
	for _, info := range r.List() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)

	r.CloseAll()
	assert.Empty(t, r.List())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SpawnFailure(t *testing.T) {
	r := NewRegistry(Config{Shell: "/nonexistent/shell"})
	_, _, err := r.GetOrCreate(context.Background(), "x", 80, 24)
	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 0, r.Len())
}
