package cache

import (
	"container/list"
	"sync"
)

type storeEntry struct {
	key   string
	value []byte
}

// MemoryStore implements ByteStore as an in-memory LRU bounded by entry count.
// It stands in for the disk tier when no writable directory is available.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element
	lruList    *list.List
}

// NewMemoryStore creates a new in-memory LRU byte store
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		lruList:    list.New(),
	}
}

func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[key]
	return ok
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}

	s.lruList.MoveToFront(elem)
	return elem.Value.(*storeEntry).value, true
}

func (s *MemoryStore) SetIfAbsent(key string, value []byte) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return false, nil
	}

	if s.lruList.Len() >= s.maxEntries {
		oldest := s.lruList.Back()
		if oldest != nil {
			delete(s.items, oldest.Value.(*storeEntry).key)
			s.lruList.Remove(oldest)
		}
	}

	ent := &storeEntry{key: key, value: append([]byte(nil), value...)}
	elem := s.lruList.PushFront(ent)
	s.items[key] = elem
	return true, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lruList.Len()
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lruList = list.New()
	return nil
}
