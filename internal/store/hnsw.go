package store

import (
	"sync"

	"github.com/coder/hnsw"
)

// SemanticHit is one in-process vector index result.
type SemanticHit struct {
	DocID string
	Score float64 // cosine similarity, higher is more similar
}

// SemanticIndex maintains one HNSW graph per embedding backend, rebuilt
// from the embeddings table at open and kept in sync on attach/delete.
// Graphs of different backends are never searched together.
type SemanticIndex struct {
	mu       sync.RWMutex
	backends map[string]*backendGraph
}

// backendGraph wraps one backend's HNSW graph with string ID mapping.
// Deletions are lazy: the mapping is dropped and orphaned graph nodes are
// filtered out of search results.
type backendGraph struct {
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewSemanticIndex creates an empty semantic index.
func NewSemanticIndex() *SemanticIndex {
	return &SemanticIndex{backends: make(map[string]*backendGraph)}
}

// newBackendGraph creates a graph for one backend; dims is fixed by the
// first vector added.
func newBackendGraph(dims int) *backendGraph {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25

	return &backendGraph{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts or replaces a vector for docID under backendID.
func (s *SemanticIndex) Add(backendID, docID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bg, ok := s.backends[backendID]
	if !ok {
		bg = newBackendGraph(len(vector))
		s.backends[backendID] = bg
	}

	if len(vector) != bg.dims {
		return ErrDimensionMismatch{BackendID: backendID, Expected: bg.dims, Got: len(vector)}
	}

	// Replacing an ID orphans the old graph node rather than deleting it;
	// deleting the last node corrupts the underlying graph.
	if existingKey, exists := bg.idMap[docID]; exists {
		delete(bg.keyMap, existingKey)
		delete(bg.idMap, docID)
	}

	key := bg.nextKey
	bg.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)

	bg.graph.Add(hnsw.MakeNode(key, vec))
	bg.idMap[docID] = key
	bg.keyMap[key] = docID

	return nil
}

// CheckDims reports whether a vector of the given length fits the
// backend's graph. A backend with no graph yet accepts any length.
func (s *SemanticIndex) CheckDims(backendID string, dims int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bg, ok := s.backends[backendID]
	if !ok || bg.dims == dims {
		return nil
	}
	return ErrDimensionMismatch{BackendID: backendID, Expected: bg.dims, Got: dims}
}

// Search finds the k nearest documents under backendID. Returns an empty
// slice for an unknown backend rather than an error: an unpopulated index
// is a legal degraded state.
func (s *SemanticIndex) Search(backendID string, query []float32, k int) ([]SemanticHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bg, ok := s.backends[backendID]
	if !ok || len(bg.idMap) == 0 {
		return []SemanticHit{}, nil
	}

	if len(query) != bg.dims {
		return nil, ErrDimensionMismatch{BackendID: backendID, Expected: bg.dims, Got: len(query)}
	}

	// Oversample to compensate for lazily deleted orphans.
	orphans := bg.graph.Len() - len(bg.idMap)
	nodes := bg.graph.Search(query, k+orphans)

	hits := make([]SemanticHit, 0, k)
	for _, node := range nodes {
		docID, live := bg.keyMap[node.Key]
		if !live {
			continue
		}
		hits = append(hits, SemanticHit{
			DocID: docID,
			Score: CosineSimilarity(query, node.Value),
		})
		if len(hits) == k {
			break
		}
	}

	return hits, nil
}

// Delete removes docID from every backend graph (lazy).
func (s *SemanticIndex) Delete(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bg := range s.backends {
		if key, exists := bg.idMap[docID]; exists {
			delete(bg.keyMap, key)
			delete(bg.idMap, docID)
		}
	}
}

// Contains reports whether docID is indexed under backendID.
func (s *SemanticIndex) Contains(backendID, docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bg, ok := s.backends[backendID]
	if !ok {
		return false
	}
	_, exists := bg.idMap[docID]
	return exists
}

// Count returns the number of live vectors under backendID.
func (s *SemanticIndex) Count(backendID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bg, ok := s.backends[backendID]
	if !ok {
		return 0
	}
	return len(bg.idMap)
}

// Backends lists backend IDs with at least one live vector.
func (s *SemanticIndex) Backends() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, bg := range s.backends {
		if len(bg.idMap) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
