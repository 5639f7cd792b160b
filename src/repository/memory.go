package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	app "memcap/src/app"
)

// MemoryDB is the process-local photo and account store (DB_DRIVER=memory).
type MemoryDB struct {
	mu       sync.RWMutex
	photos   map[string]*memoryPhoto
	accounts map[string]*app.Account
	seq      int64
	now      func() time.Time
}

type memoryPhoto struct {
	rec app.PhotoRecord
	seq int64
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		photos:   make(map[string]*memoryPhoto),
		accounts: make(map[string]*app.Account),
		now:      time.Now,
	}
}

func (m *MemoryDB) Insert(_ context.Context, rec *app.PhotoRecord) (*app.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *rec
	stored.ID = uuid.NewString()
	stored.CreatedAt = m.now().UTC()
	m.seq++
	m.photos[stored.ID] = &memoryPhoto{rec: stored, seq: m.seq}
	out := stored
	return &out, nil
}

func (m *MemoryDB) ListByUser(_ context.Context, userID string) ([]*app.PhotoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owned := make([]*memoryPhoto, 0)
	for _, p := range m.photos {
		if p.rec.UserID == userID {
			owned = append(owned, p)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].rec.CreatedAt.Equal(owned[j].rec.CreatedAt) {
			return owned[i].rec.CreatedAt.After(owned[j].rec.CreatedAt)
		}
		return owned[i].seq > owned[j].seq
	})
	result := make([]*app.PhotoRecord, 0, len(owned))
	for _, p := range owned {
		rec := p.rec
		result = append(result, &rec)
	}
	return result, nil
}

func (m *MemoryDB) GetOwned(_ context.Context, id, userID string) (*app.PhotoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.photos[id]
	if !ok || p.rec.UserID != userID {
		return nil, app.ErrNotFound
	}
	rec := p.rec
	return &rec, nil
}

func (m *MemoryDB) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok {
		return app.ErrNotFound
	}
	p.rec.Status = &status
	return nil
}

func (m *MemoryDB) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok || p.rec.UserID != userID {
		return app.ErrNotFound
	}
	delete(m.photos, id)
	return nil
}

func (m *MemoryDB) ExistsByPath(_ context.Context, storagePath string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.photos {
		if p.rec.StoragePath == storagePath {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryDB) CreateAccount(_ context.Context, acc *app.Account) (*app.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(acc.Email)
	for _, existing := range m.accounts {
		if existing.Email == email {
			return nil, app.ErrAccountExists
		}
	}
	stored := *acc
	stored.ID = uuid.NewString()
	stored.Email = email
	stored.CreatedAt = m.now().UTC()
	m.accounts[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *MemoryDB) AccountByEmail(_ context.Context, email string) (*app.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, acc := range m.accounts {
		if acc.Email == email {
			out := *acc
			return &out, nil
		}
	}
	return nil, app.ErrNotFound
}

func (m *MemoryDB) AccountByID(_ context.Context, id string) (*app.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, app.ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (m *MemoryDB) Close() error { return nil }
