package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DecisionCacheStore holds serialized interception decisions for a
// bounded time window so the guard does not repeat requirement lookup
// and flag hashing on every call. Entries are only eventually
// consistent with the registry; the TTL bounds the staleness.
//
// Cache keys are built by the interceptor as
// "u:<user>|l:<layer>|m:<method>|a:<accountType>" so user-scoped
// invalidation can match on the prefix.
type DecisionCacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

// DecisionCacheKey assembles the canonical cache key for one guarded
// call. userID may be empty for anonymous calls.
func DecisionCacheKey(userID, layer, method, accountType string) string {
	var b strings.Builder
	b.Grow(len(userID) + len(layer) + len(method) + len(accountType) + 12)
	b.WriteString("u:")
	b.WriteString(userID)
	b.WriteString("|l:")
	b.WriteString(layer)
	b.WriteString("|m:")
	b.WriteString(method)
	b.WriteString("|a:")
	b.WriteString(accountType)
	return b.String()
}

type NoopDecisionCacheStore struct{}

func NewNoopDecisionCacheStore() *NoopDecisionCacheStore { return &NoopDecisionCacheStore{} }

func (s *NoopDecisionCacheStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopDecisionCacheStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopDecisionCacheStore) InvalidateUser(context.Context, string) error { return nil }

func (s *NoopDecisionCacheStore) InvalidateAll(context.Context) error { return nil }

type decisionCacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// InMemoryDecisionCacheStore is the default single-process cache.
type InMemoryDecisionCacheStore struct {
	mu      sync.RWMutex
	entries map[string]decisionCacheEntry
	now     func() time.Time
}

func NewInMemoryDecisionCacheStore() *InMemoryDecisionCacheStore {
	return &InMemoryDecisionCacheStore{
		entries: map[string]decisionCacheEntry{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryDecisionCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.now()
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

func (s *InMemoryDecisionCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.entries[key] = decisionCacheEntry{payload: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryDecisionCacheStore) InvalidateUser(_ context.Context, userID string) error {
	prefix := "u:" + userID + "|"
	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryDecisionCacheStore) InvalidateAll(context.Context) error {
	s.mu.Lock()
	s.entries = map[string]decisionCacheEntry{}
	s.mu.Unlock()
	return nil
}
