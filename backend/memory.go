package backend

import (
	"bytes"
	"container/list"
	"context"
	"sync"
)

// Memory is an in-process, insertion-ordered Backend.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*list.Element
	order *list.List
}

type memItem struct {
	key string
	val []byte
}

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get retrieves a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(el.Value.(*memItem).val), true, nil
}

// Set stores a copy of val. An existing key keeps its position.
func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		el.Value.(*memItem).val = bytes.Clone(val)
		return nil
	}
	m.items[key] = m.order.PushBack(&memItem{key: key, val: bytes.Clone(val)})
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.order.Remove(el)
		delete(m.items, key)
	}
	return nil
}

// Keys lists keys in insertion order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*memItem).key)
	}
	return keys, nil
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.items)
	m.order.Init()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
