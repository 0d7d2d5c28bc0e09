// Package tokenstore provides the durable key/value storage that holds the
// session tokens, the cached profile and the per-user job lists.
//
// Store is deliberately error-free: a storage outage must never break a
// session, so durable backends are wrapped with Resilient, which degrades to
// an in-memory copy when the backend fails.
package tokenstore

import "sync"

// Well-known keys.
const (
	KeyAccessToken       = "accessToken"
	KeyRefreshToken      = "refreshToken"
	KeyUser              = "user"
	KeyLanguage          = "anotLanguage"
	KeyCompletedPayments = "completedPayments"

	plagiarismHistoryPrefix = "plagiarismHistory_"
)

// PlagiarismHistoryKey returns the key of the job list owned by userID.
func PlagiarismHistoryKey(userID string) string {
	return plagiarismHistoryPrefix + userID
}

// Store is synchronous key/value persistence. Callers own the value schema.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Backend is a durable key/value source that can fail.
type Backend interface {
	Load(key string) (string, bool, error)
	Save(key, value string) error
	Delete(key string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

func (s *MemoryStore) Remove(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Keys returns a snapshot of the stored keys.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}
