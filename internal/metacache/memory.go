package metacache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/stacforge/internal/observability"
)

type memoryEntry struct {
	val     []byte
	expires time.Time
}

// Memory is an in-process LRU cache. The TTL passed to Put bounds how
// long an entry may be served; eviction beyond that is size-driven.
type Memory struct {
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

func NewMemory(size int) (*Memory, error) {
	c, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &Memory{lru: c, now: time.Now}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		observability.ObserveCacheOp("get", false, nil)
		return nil, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.lru.Remove(key)
		observability.ObserveCacheOp("get", false, nil)
		return nil, false, nil
	}
	observability.ObserveCacheOp("get", true, nil)
	return e.val, true, nil
}

func (m *Memory) Put(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := memoryEntry{val: val}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	observability.ObserveCacheOp("put", false, nil)
	return nil
}
