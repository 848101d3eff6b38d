package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// KeyValue is the backing cache for idempotent responses. The redis
// implementation lives in platform/redis.
type KeyValue interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	StoreIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

type IdempotencyStore struct {
	kv  KeyValue
	ttl time.Duration
}

type idempotentEntry struct {
	RequestHash string          `json:"requestHash"`
	Response    json.RawMessage `json:"response"`
}

func NewIdempotencyStore(kv KeyValue, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{kv: kv, ttl: ttl}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func idempotencyKey(subject, endpoint, key string) string {
	return subject + "|" + endpoint + "|" + key
}

// Check returns the stored response for a replayed key. A key reused with a
// different payload is a conflict.
func (s *IdempotencyStore) Check(ctx context.Context, subject, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.kv == nil {
		return nil, false, nil
	}
	raw, found, err := s.kv.Load(ctx, idempotencyKey(subject, endpoint, key))
	if err != nil || !found {
		return nil, false, err
	}
	var entry idempotentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, err
	}
	if entry.RequestHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return entry.Response, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, subject, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.kv == nil {
		return nil
	}
	payload, err := json.Marshal(idempotentEntry{RequestHash: requestHash, Response: response})
	if err != nil {
		return err
	}
	stored, err := s.kv.StoreIfAbsent(ctx, idempotencyKey(subject, endpoint, key), payload, s.ttl)
	if err != nil {
		return err
	}
	if !stored {
		_, _, err := s.Check(ctx, subject, endpoint, key, requestHash)
		return err
	}
	return nil
}

// MemoryKeyValue keeps entries in process, for single-instance deployments
// and tests.
type MemoryKeyValue struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemoryKeyValue() *MemoryKeyValue {
	return &MemoryKeyValue{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryKeyValue) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || (!entry.expires.IsZero() && m.now().After(entry.expires)) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryKeyValue) StoreIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok && (entry.expires.IsZero() || m.now().Before(entry.expires)) {
		return false, nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.entries[key] = memoryEntry{value: value, expires: expires}
	return true, nil
}
