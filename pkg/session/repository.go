package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/loomchat/pkg/store"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository holds the session collection and writes it back to the store as one document
// under store.KeySessions. Concurrent writers of the same store overwrite each other.
type Repository struct {
	mu       sync.RWMutex
	store    store.Store
	sessions map[string]*Session
	now      func() time.Time
}

func LoadRepository(ctx context.Context, st store.Store) (*Repository, error) {
	r := &Repository{store: st, sessions: map[string]*Session{}, now: time.Now}
	b, ok, err := st.Get(ctx, store.KeySessions)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load sessions")
	}
	if !ok || len(b) == 0 {
		return r, nil
	}
	var sessions []*Session
	if err := json.Unmarshal(b, &sessions); err != nil {
		return nil, pkgerrors.Wrap(err, "decode sessions")
	}
	for _, s := range sessions {
		s.tree()
		r.sessions[s.ID] = s
	}
	log.Debug().Int("count", len(sessions)).Msg("sessions loaded")
	return r, nil
}

// List returns the sessions, most recently updated first.
func (r *Repository) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		ret = append(ret, s)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].LastUpdatedAt.Equal(ret[j].LastUpdatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].LastUpdatedAt.After(ret[j].LastUpdatedAt)
	})
	return ret
}

func (r *Repository) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, pkgerrors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return s, nil
}

func (r *Repository) Create(ctx context.Context) (*Session, error) {
	s := New(r.now())
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save inserts or replaces s and persists the whole collection.
func (r *Repository) Save(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.sessions[s.ID]
	r.sessions[s.ID] = s
	if err := r.persistLocked(ctx); err != nil {
		if had {
			r.sessions[s.ID] = prev
		} else {
			delete(r.sessions, s.ID)
		}
		return err
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.sessions[id]
	if !ok {
		return pkgerrors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	delete(r.sessions, id)
	if err := r.persistLocked(ctx); err != nil {
		r.sessions[id] = prev
		return err
	}
	return nil
}

func (r *Repository) persistLocked(ctx context.Context) error {
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	b, err := json.Marshal(sessions)
	if err != nil {
		return pkgerrors.Wrap(err, "encode sessions")
	}
	return pkgerrors.Wrap(r.store.Set(ctx, store.KeySessions, b), "save sessions")
}
