package vector

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/hyperjump/gazou/internal/models"
)

const (
	// hnswM is the per-node connectivity. Level 0 allows 2*hnswM links.
	hnswM              = 16
	hnswEfConstruction = 200
	hnswEfSearch       = 64
)

// HNSWIndex is a hierarchical navigable small world graph index. Inserts place
// each vector on a random level; searches descend the layer hierarchy greedily
// and run a bounded best-first expansion on the bottom layer. Approximate.
//
// Distance is cosine distance (1 - inner product), valid because stored
// vectors and queries are unit-normalized.
type HNSWIndex struct {
	store
	m         int
	efCons    int
	efSearch  int
	entry     int64 // -1 while empty
	maxLevel  int
	levels    []int     // top level per node
	neighbors [][][]int32
	levelMult float64
	rng       *rand.Rand
}

// NewHNSWIndex creates an empty graph index with the given dimension.
func NewHNSWIndex(dim int) (*HNSWIndex, error) {
	s, err := newStore(dim)
	if err != nil {
		return nil, err
	}
	return &HNSWIndex{
		store:     s,
		m:         hnswM,
		efCons:    hnswEfConstruction,
		efSearch:  hnswEfSearch,
		entry:     -1,
		levelMult: 1 / math.Log(float64(hnswM)),
		rng:       rand.New(rand.NewSource(1)),
	}, nil
}

func (h *HNSWIndex) distance(a, b []float32) float32 {
	return 1 - InnerProduct(a, b)
}

// Add appends vectors and links them into the graph.
func (h *HNSWIndex) Add(vectors [][]float32, paths []string, meta []models.ImageRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	startID, err := h.appendVectors(vectors, paths, meta)
	if err != nil {
		return err
	}
	for i := range vectors {
		h.insert(int32(startID + int64(i)))
	}
	return nil
}

// randomLevel draws a level from the standard exponential distribution.
func (h *HNSWIndex) randomLevel() int {
	return int(-math.Log(h.rng.Float64()) * h.levelMult)
}

// insert links node id into the graph. Callers must hold mu.
func (h *HNSWIndex) insert(id int32) {
	level := h.randomLevel()
	h.levels = append(h.levels, level)
	links := make([][]int32, level+1)
	h.neighbors = append(h.neighbors, links)

	if h.entry < 0 {
		h.entry = int64(id)
		h.maxLevel = level
		return
	}

	q := h.vectors[id]
	ep := int32(h.entry)
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedyClosest(q, ep, l)
	}
	top := level
	if top > h.maxLevel {
		top = h.maxLevel
	}
	for l := top; l >= 0; l-- {
		candidates := h.searchLayer(q, ep, h.efCons, l)
		m := h.maxConn(l)
		selected := candidates
		if len(selected) > m {
			selected = selected[:m]
		}
		links[l] = make([]int32, len(selected))
		for i, c := range selected {
			links[l][i] = c.id
		}
		for _, c := range selected {
			h.link(c.id, id, l)
		}
		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}
	if level > h.maxLevel {
		h.entry = int64(id)
		h.maxLevel = level
	}
}

// maxConn is the link budget at a layer.
func (h *HNSWIndex) maxConn(level int) int {
	if level == 0 {
		return 2 * h.m
	}
	return h.m
}

// link adds dst to src's neighbor list at level, pruning to the link budget by
// keeping the closest neighbors.
func (h *HNSWIndex) link(src, dst int32, level int) {
	nb := append(h.neighbors[src][level], dst)
	m := h.maxConn(level)
	if len(nb) > m {
		v := h.vectors[src]
		worst, worstDist := 0, float32(-1)
		for i, n := range nb {
			if d := h.distance(v, h.vectors[n]); d > worstDist {
				worst, worstDist = i, d
			}
		}
		nb = append(nb[:worst], nb[worst+1:]...)
	}
	h.neighbors[src][level] = nb
}

// greedyClosest walks the layer greedily toward q and returns the local minimum.
func (h *HNSWIndex) greedyClosest(q []float32, ep int32, level int) int32 {
	cur := ep
	curDist := h.distance(q, h.vectors[cur])
	for {
		improved := false
		for _, n := range h.neighborsAt(cur, level) {
			if d := h.distance(q, h.vectors[n]); d < curDist {
				cur, curDist = n, d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

func (h *HNSWIndex) neighborsAt(id int32, level int) []int32 {
	if level >= len(h.neighbors[id]) {
		return nil
	}
	return h.neighbors[id][level]
}

type hnswCandidate struct {
	id   int32
	dist float32
}

// candidateHeap is a min-heap by distance (closest first).
type candidateHeap []hnswCandidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(hnswCandidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// resultHeap is a max-heap by distance (farthest first), bounding the result set.
type resultHeap []hnswCandidate

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(hnswCandidate)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// searchLayer runs bounded best-first search on one layer and returns up to ef
// candidates sorted by ascending distance. Callers must hold mu (read).
func (h *HNSWIndex) searchLayer(q []float32, ep int32, ef, level int) []hnswCandidate {
	visited := make(map[int32]struct{}, ef*4)
	visited[ep] = struct{}{}
	epDist := h.distance(q, h.vectors[ep])

	candidates := candidateHeap{{id: ep, dist: epDist}}
	results := resultHeap{{id: ep, dist: epDist}}
	heap.Init(&candidates)
	heap.Init(&results)

	for candidates.Len() > 0 {
		c := heap.Pop(&candidates).(hnswCandidate)
		if c.dist > results[0].dist && results.Len() >= ef {
			break
		}
		for _, n := range h.neighborsAt(c.id, level) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			d := h.distance(q, h.vectors[n])
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&candidates, hnswCandidate{id: n, dist: d})
				heap.Push(&results, hnswCandidate{id: n, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}
	out := make([]hnswCandidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(hnswCandidate)
	}
	return out
}

// Search descends the hierarchy and expands the bottom layer with
// ef = max(efSearch, topK).
func (h *HNSWIndex) Search(query []float32, topK int) ([]Result, error) {
	if len(query) != h.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dim)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if topK <= 0 || len(h.vectors) == 0 || h.entry < 0 || L2Norm(query) < zeroNormEps {
		return nil, nil
	}
	ep := int32(h.entry)
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedyClosest(query, ep, l)
	}
	ef := h.efSearch
	if topK > ef {
		ef = topK
	}
	candidates := h.searchLayer(query, ep, ef, 0)
	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]Result, 0, topK)
	for _, c := range candidates[:topK] {
		results = append(results, Result{
			ID:    int64(c.id),
			Path:  h.paths[c.id],
			Score: 1 - c.dist,
		})
	}
	return results, nil
}

// Save writes the index to prefix.vec and prefix_metadata.gob. The vector file
// carries the graph (entry point, levels, adjacency) after the common header.
func (h *HNSWIndex) Save(prefix string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, err := h.openVecFile(prefix, IndexTypeHNSW)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, h.entry); err != nil {
		return fmt.Errorf("write entry point: %w", err)
	}
	if err := writeAll(f, uint32(h.maxLevel)); err != nil {
		return err
	}
	for id := range h.neighbors {
		if err := writeAll(f, uint32(h.levels[id]), uint32(len(h.neighbors[id]))); err != nil {
			return err
		}
		for _, links := range h.neighbors[id] {
			if err := writeAll(f, uint32(len(links))); err != nil {
				return err
			}
			if err := binary.Write(f, binary.LittleEndian, links); err != nil {
				return fmt.Errorf("write links: %w", err)
			}
		}
	}
	return h.writeSidecar(prefix, IndexTypeHNSW)
}

// Load replaces the index contents from the artifacts at prefix.
func (h *HNSWIndex) Load(prefix string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.loadVecFile(prefix, IndexTypeHNSW)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := binary.Read(f, binary.LittleEndian, &h.entry); err != nil {
		return fmt.Errorf("read entry point: %w", err)
	}
	var maxLevel uint32
	if err := readAll(f, &maxLevel); err != nil {
		return err
	}
	h.maxLevel = int(maxLevel)
	n := len(h.vectors)
	h.levels = make([]int, n)
	h.neighbors = make([][][]int32, n)
	for id := 0; id < n; id++ {
		var level, numLayers uint32
		if err := readAll(f, &level, &numLayers); err != nil {
			return err
		}
		h.levels[id] = int(level)
		h.neighbors[id] = make([][]int32, numLayers)
		for l := uint32(0); l < numLayers; l++ {
			var count uint32
			if err := readAll(f, &count); err != nil {
				return err
			}
			links := make([]int32, count)
			if count > 0 {
				if err := binary.Read(f, binary.LittleEndian, links); err != nil {
					return fmt.Errorf("read links: %w", err)
				}
			}
			h.neighbors[id][l] = links
		}
	}
	return nil
}

// Stats reports index counters.
func (h *HNSWIndex) Stats() models.IndexStats {
	return h.stats(IndexTypeHNSW)
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() IndexType {
	return IndexTypeHNSW
}

// Close is a no-op for HNSWIndex.
func (h *HNSWIndex) Close() error {
	return nil
}
