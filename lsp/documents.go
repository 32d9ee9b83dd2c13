package lsp

import (
	"container/list"
	"sync"
)

// DefaultMaxDocuments bounds the number of open documents held in memory.
const DefaultMaxDocuments = 100

// documentEntry is one cached document in the LRU list
type documentEntry struct {
	uri     string
	content string
	// version increments on every update so late diagnostics for an older
	// revision can be dropped
	version uint64
}

// documentStore caches open document contents with least-recently-used
// eviction once max documents are open.
type documentStore struct {
	mu        sync.Mutex
	max       int
	documents map[string]*list.Element // URI -> list element
	lru       *list.List
}

func newDocumentStore(limit int) *documentStore {
	if limit <= 0 {
		limit = DefaultMaxDocuments
	}
	return &documentStore{
		max:       limit,
		documents: make(map[string]*list.Element),
		lru:       list.New(),
	}
}

// Set stores content for uri, marks it most recently used and returns its new
// version plus the URI evicted to make room, if any.
func (s *documentStore) Set(uri, content string) (version uint64, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.documents[uri]; ok {
		s.lru.MoveToFront(elem)
		entry := elem.Value.(*documentEntry)
		entry.content = content
		entry.version++
		return entry.version, ""
	}

	if len(s.documents) >= s.max {
		if oldest := s.lru.Back(); oldest != nil {
			old := oldest.Value.(*documentEntry)
			s.lru.Remove(oldest)
			delete(s.documents, old.uri)
			evicted = old.uri
		}
	}

	entry := &documentEntry{uri: uri, content: content, version: 1}
	s.documents[uri] = s.lru.PushFront(entry)
	return entry.version, evicted
}

// Get returns the content of uri and marks it recently used.
func (s *documentStore) Get(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.documents[uri]
	if !ok {
		return "", false
	}
	s.lru.MoveToFront(elem)
	return elem.Value.(*documentEntry).content, true
}

// Version returns the current version of uri, zero when not open.
func (s *documentStore) Version(uri string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.documents[uri]; ok {
		return elem.Value.(*documentEntry).version
	}
	return 0
}

// Remove drops uri.
func (s *documentStore) Remove(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.documents[uri]; ok {
		s.lru.Remove(elem)
		delete(s.documents, uri)
	}
}

// Len returns the number of open documents.
func (s *documentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents)
}
