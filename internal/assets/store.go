// Package assets persists uploaded image bytes and hands back durable URLs.
//
// Two implementations are provided. SupabaseStore writes to a Supabase
// storage bucket and is the production backend. MemoryStore keeps bytes in
// process memory and serves development and tests. Both satisfy the single
// Put capability the pipeline consumes.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// objectPrefix namespaces uploaded report images inside the bucket.
const objectPrefix = "report-images"

// SupabaseStore uploads assets to a Supabase storage bucket.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseStore builds a store for the given project URL, service key,
// and bucket.
func NewSupabaseStore(url, key, bucket string) *SupabaseStore {
	return &SupabaseStore{
		client: storage_go.NewClient(strings.TrimRight(url, "/"), key, nil),
		bucket: bucket,
	}
}

// objectPath derives a collision-resistant bucket path, keeping the original
// extension so content type inference downstream still works.
func objectPath(filename string) string {
	ext := path.Ext(filename)
	return fmt.Sprintf("%s/%d-%06d%s", objectPrefix, time.Now().UnixNano(), rand.Intn(1_000_000), ext)
}

// Put uploads the bytes and returns the public URL of the stored object.
func (s *SupabaseStore) Put(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := objectPath(filename)
	opts := storage_go.FileOptions{}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.client.UploadFile(s.bucket, p, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", p, err)
	}
	return s.client.GetPublicUrl(s.bucket, p).SignedURL, nil
}

// MemoryStore is an in-process asset store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// BaseURL prefixes returned URLs; defaults to "memory://".
	BaseURL string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores the bytes under a generated path and returns its URL.
func (m *MemoryStore) Put(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := objectPath(filename)
	m.mu.Lock()
	m.objects[p] = append([]byte(nil), data...)
	m.mu.Unlock()
	base := m.BaseURL
	if base == "" {
		base = "memory://"
	}
	return base + p, nil
}

// Get returns a stored object's bytes, for test assertions.
func (m *MemoryStore) Get(url string) ([]byte, bool) {
	base := m.BaseURL
	if base == "" {
		base = "memory://"
	}
	p := strings.TrimPrefix(url, base)
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[p]
	return b, ok
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
