package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const stateKey = "fibwatch:state"

// ErrNotFound is returned by a KV when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// KV is the external key-value store holding the persisted state.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RedisKV persists through Redis.
type RedisKV struct {
	rdb *goredis.Client
}

// NewRedisKV wraps an existing Redis client.
func NewRedisKV(rdb *goredis.Client) *RedisKV { return &RedisKV{rdb: rdb} }

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

// MemoryKV is the in-process fallback used when Redis is unreachable.
// State survives for the process lifetime only.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV { return &MemoryKV{data: make(map[string][]byte)} }

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

// Store loads and saves the persisted state through a KV backend.
type Store struct {
	kv KV
}

// New creates a Store over the given backend.
func New(kv KV) *Store { return &Store{kv: kv} }

// Load reads and migrates the persisted state. Missing or corrupt entries
// fall back to Defaults and never block startup.
func (s *Store) Load(ctx context.Context) PersistedState {
	raw, err := s.kv.Get(ctx, stateKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[store] load failed: %v (using defaults)", err)
		}
		return Defaults()
	}
	state, err := Migrate(raw)
	if err != nil {
		log.Printf("[store] corrupt persisted state: %v (using defaults)", err)
		return Defaults()
	}
	return state
}

// Save serializes the state. Failures are logged; the in-memory state
// remains source of truth either way.
func (s *Store) Save(state PersistedState) {
	data, err := marshalState(state)
	if err != nil {
		log.Printf("[store] marshal failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.kv.Set(ctx, stateKey, data); err != nil {
		log.Printf("[store] WARNING: failed to persist state: %v", err)
	}
}
