package app

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryObjectStore keeps objects in process memory. It backs S3_DRIVER=memory
// and the tests; URLs point at a fake host so that their path is /{bucket}/{key}.
type MemoryObjectStore struct {
	mu      sync.Mutex
	bucket  string
	baseURL string
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	payload     []byte
	contentType string
	modified    time.Time
}

func NewMemoryObjectStore(bucket string) *MemoryObjectStore {
	return &MemoryObjectStore{
		bucket:  bucket,
		baseURL: "http://objects.local",
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func (m *MemoryObjectStore) Upload(_ context.Context, key string, payload []byte, opts PutOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
	}
	m.objects[key] = memoryObject{
		payload:     append([]byte(nil), payload...),
		contentType: opts.ContentType,
		modified:    m.now(),
	}
	return key, nil
}

func (m *MemoryObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), obj.payload...), nil
}

func (m *MemoryObjectStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

func (m *MemoryObjectStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, ObjectInfo{Key: key, Size: int64(len(obj.payload)), LastModified: obj.modified})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// Has reports whether key is stored.
func (m *MemoryObjectStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Touch overrides the modification time of key.
func (m *MemoryObjectStore) Touch(key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.modified = at
		m.objects[key] = obj
	}
}

func (m *MemoryObjectStore) PublicURL(key string) string {
	return m.baseURL + "/" + m.bucket + "/" + key
}

func (m *MemoryObjectStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if !m.Has(key) {
		return "", fmt.Errorf("presign %s: %w", key, ErrNotFound)
	}
	q := url.Values{}
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int(ttl.Seconds())))
	return m.PublicURL(key) + "?" + q.Encode(), nil
}
