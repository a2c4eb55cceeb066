package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and local dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Get reads an object's content.
func (m *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrKeyNotFound)
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// Put writes an object's content.
func (m *MemoryStore) Put(ctx context.Context, bucket, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(content))
	copy(stored, content)
	m.objects[objectKey(bucket, key)] = stored
	return nil
}

// Copy copies an object between locations.
func (m *MemoryStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.objects[objectKey(srcBucket, srcKey)]
	if !ok {
		return fmt.Errorf("s3://%s/%s: %w", srcBucket, srcKey, ErrKeyNotFound)
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	m.objects[objectKey(dstBucket, dstKey)] = stored
	return nil
}

// Keys returns every stored bucket/key, sorted, optionally filtered by
// prefix. Test helper.
func (m *MemoryStore) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
