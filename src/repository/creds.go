package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	app "memcap/src/app"
)

type (
	// InMemoryDB keeps sessions in process memory, indexed by both tokens.
	InMemoryDB struct {
		mu      sync.RWMutex
		table   map[string]sessionEntry
		refresh map[string]string
		now     func() time.Time
	}

	sessionEntry struct {
		session app.Session
		expires time.Time
	}
)

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		table:   make(map[string]sessionEntry),
		refresh: make(map[string]string),
		now:     time.Now,
	}
}

// Save stores s until ttl elapses.
func (i *InMemoryDB) Save(_ context.Context, s *app.Session, ttl time.Duration) error {
	if s == nil || s.AccessToken == "" {
		return fmt.Errorf("can not save session without access token")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.table[s.AccessToken] = sessionEntry{session: *s, expires: i.now().Add(ttl)}
	if s.RefreshToken != "" {
		i.refresh[s.RefreshToken] = s.AccessToken
	}
	return nil
}

func (i *InMemoryDB) ByAccessToken(_ context.Context, accessToken string) (*app.Session, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lookup(accessToken)
}

func (i *InMemoryDB) ByRefreshToken(_ context.Context, refreshToken string) (*app.Session, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	accessToken, ok := i.refresh[refreshToken]
	if !ok {
		return nil, app.ErrNotFound
	}
	return i.lookup(accessToken)
}

func (i *InMemoryDB) lookup(accessToken string) (*app.Session, error) {
	entry, ok := i.table[accessToken]
	if !ok || !entry.expires.After(i.now()) {
		return nil, app.ErrNotFound
	}
	s := entry.session
	return &s, nil
}

// Delete forgets the session of accessToken. Unknown tokens are ignored.
func (i *InMemoryDB) Delete(_ context.Context, accessToken string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	entry, ok := i.table[accessToken]
	if !ok {
		return nil
	}
	delete(i.table, accessToken)
	delete(i.refresh, entry.session.RefreshToken)
	return nil
}

// Purge drops expired entries.
func (i *InMemoryDB) Purge() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.now()
	n := 0
	for token, entry := range i.table {
		if !entry.expires.After(now) {
			delete(i.table, token)
			delete(i.refresh, entry.session.RefreshToken)
			n++
		}
	}
	return n
}
