package session

import "sync"

// Keys the authority keeps in its Store.
const (
	KeyCredential   = "portal.credential"
	KeyIssuedAt     = "portal.issued_at"
	KeyExpiresAt    = "portal.expires_at"
	KeyIdentity     = "portal.identity"
	KeyLastActivity = "portal.last_activity_at"
)

var allKeys = []string{KeyCredential, KeyIssuedAt, KeyExpiresAt, KeyIdentity, KeyLastActivity}

// Store is the key/value medium that holds a session between calls.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStore keeps values for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
