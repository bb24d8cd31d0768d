package translate

import (
	"container/list"
	"sync"

	"github.com/roach88/canvaspipe/internal/ir"
)

// DefaultMemoryEntries is the in-memory tier capacity used when none is set.
const DefaultMemoryEntries = 512

type memoryEntry struct {
	key     string
	content ir.IRObject
}

// memoryTier is a bounded LRU in front of the persisted translations.
// Values are cloned on the way in and out so callers never share maps.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	ll       *list.List
}

func newMemoryTier(capacity int) *memoryTier {
	if capacity <= 0 {
		capacity = DefaultMemoryEntries
	}
	return &memoryTier{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		ll:       list.New(),
	}
}

func (m *memoryTier) get(key string) (ir.IRObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.items[key]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(elem)
	return elem.Value.(memoryEntry).content.Clone(), true
}

func (m *memoryTier) put(key string, content ir.IRObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{key: key, content: content.Clone()}
	if elem, ok := m.items[key]; ok {
		elem.Value = entry
		m.ll.MoveToFront(elem)
		return
	}
	m.items[key] = m.ll.PushFront(entry)
	if m.ll.Len() > m.capacity {
		tail := m.ll.Back()
		m.ll.Remove(tail)
		delete(m.items, tail.Value.(memoryEntry).key)
	}
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
