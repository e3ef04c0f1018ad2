package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/noirtty/noirtty/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const maxSessionIDLength = 100

// Registry maps session ids to live sessions. Concurrent GetOrCreate calls
// for the same id spawn at most one shell.
type Registry struct {
	defaults Config
	opts     []Option
	log      zerolog.Logger

	sessions sync.Map // string -> *Session
	count    atomic.Int64
	group    singleflight.Group
}

// NewRegistry returns a registry that creates sessions from defaults.
// opts are applied to every session it creates.
func NewRegistry(defaults Config, opts ...Option) *Registry {
	return &Registry{
		defaults: defaults,
		opts:     opts,
		log:      logger.Component("registry"),
	}
}

// SanitizeID strips path traversal and control sequences from a client
// supplied id and bounds its length. An id that is empty afterwards is
// replaced with a fresh random one.
func SanitizeID(id string) string {
	id = strings.ReplaceAll(id, "..", "")
	id = strings.ReplaceAll(id, "~/", "")
	id = strings.ReplaceAll(id, "~", "")
	id = strings.TrimPrefix(id, "/")
	id = strings.ReplaceAll(id, "\x00", "")
	id = strings.ReplaceAll(id, "\n", "")
	id = strings.ReplaceAll(id, "\r", "")
	if len(id) > maxSessionIDLength {
		id = id[:maxSessionIDLength]
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id
}

// GetOrCreate returns the live session for id, spawning it at cols x rows
// when none exists. created reports whether a new shell was spawned. The
// returned id may differ from the requested one after sanitising.
func (r *Registry) GetOrCreate(ctx context.Context, id string, cols, rows int) (s *Session, created bool, err error) {
	id = SanitizeID(id)
	if s, ok := r.Get(id); ok {
		return s, false, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.Get(id); ok {
			return s, nil
		}
		cfg := r.defaults
		if cols > 0 {
			cfg.Cols = cols
		}
		if rows > 0 {
			cfg.Rows = rows
		}
		opts := append(slices.Clone(r.opts), WithOnExit(r.forget))
		ns, err := Create(ctx, id, cfg, opts...)
		if err != nil {
			return nil, err
		}
		r.sessions.Store(id, ns)
		r.count.Add(1)
		created = true
		r.log.Info().Str("session", id).Msg("session created")
		return ns, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Session), created, nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	if s.Closed() {
		r.forget(s)
		return nil, false
	}
	return s, true
}

// Remove terminates and forgets the session for id. Removing an unknown id
// is a no-op.
func (r *Registry) Remove(id string) bool {
	v, ok := r.sessions.Load(id)
	if !ok {
		return false
	}
	s := v.(*Session)
	r.forget(s)
	_ = s.Close()
	return true
}

// forget drops s only if it is still the session registered under its id.
func (r *Registry) forget(s *Session) {
	if r.sessions.CompareAndDelete(s.ID, s) {
		r.count.Add(-1)
		r.log.Debug().Str("session", s.ID).Msg("session removed from registry")
	}
}

// List describes every live session, oldest first.
func (r *Registry) List() []Info {
	var sessions []*Session
	r.sessions.Range(func(_, v any) bool {
		if s := v.(*Session); !s.Closed() {
			sessions = append(sessions, s)
		}
		return true
	})
	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	return infos
}

func (r *Registry) Len() int {
	return int(r.count.Load())
}

// CloseAll terminates every session.
func (r *Registry) CloseAll() {
	r.sessions.Range(func(k, _ any) bool {
		r.Remove(k.(string))
		return true
	})
}
