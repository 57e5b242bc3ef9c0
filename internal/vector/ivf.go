package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/pkg/utils"
)

const (
	// defaultNList is the target cluster count; the effective count is capped
	// by the size of the training batch.
	defaultNList = 100
	// defaultNProbe bounds how many clusters a search visits.
	defaultNProbe = 10
	kmeansIters   = 20
)

// IVFIndex partitions the vector space into clusters with a spherical k-means
// quantizer and searches only the nprobe nearest clusters. The quantizer trains
// lazily on the first Add call; insertions before training are rejected by
// construction order (Add always trains first). Approximate: vectors in
// unprobed clusters are never seen by a query.
type IVFIndex struct {
	store
	nlist     int
	nprobe    int
	trained   bool
	centroids [][]float32
	postings  [][]int64
	rng       *rand.Rand
}

// NewIVFIndex creates an empty inverted-file index with the given dimension.
func NewIVFIndex(dim int) (*IVFIndex, error) {
	s, err := newStore(dim)
	if err != nil {
		return nil, err
	}
	return &IVFIndex{
		store:  s,
		nlist:  defaultNList,
		nprobe: defaultNProbe,
		rng:    rand.New(rand.NewSource(1)),
	}, nil
}

// Trained reports whether the quantizer has been trained.
func (x *IVFIndex) Trained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.trained
}

// Add appends vectors, training the quantizer on the first call.
func (x *IVFIndex) Add(vectors [][]float32, paths []string, meta []models.ImageRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	startID, err := x.appendVectors(vectors, paths, meta)
	if err != nil {
		return err
	}
	if !x.trained {
		x.train(x.vectors[startID:])
	}
	for i := range vectors {
		id := startID + int64(i)
		c := x.nearestCentroid(x.vectors[id])
		x.postings[c] = append(x.postings[c], id)
	}
	return nil
}

// train runs spherical k-means over the training batch. The effective cluster
// count is min(nlist, len(batch)). Callers must hold mu.
func (x *IVFIndex) train(batch [][]float32) {
	nlist := x.nlist
	if nlist > len(batch) {
		nlist = len(batch)
	}
	perm := x.rng.Perm(len(batch))
	centroids := make([][]float32, nlist)
	for i := 0; i < nlist; i++ {
		c := make([]float32, x.dim)
		copy(c, batch[perm[i]])
		centroids[i] = c
	}
	assign := make([]int, len(batch))
	for iter := 0; iter < kmeansIters; iter++ {
		changed := false
		for i, vec := range batch {
			best, bestScore := 0, float32(-2)
			for c, cent := range centroids {
				if score := InnerProduct(vec, cent); score > bestScore {
					best, bestScore = c, score
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		sums := make([][]float32, nlist)
		counts := make([]int, nlist)
		for i := range sums {
			sums[i] = make([]float32, x.dim)
		}
		for i, vec := range batch {
			c := assign[i]
			counts[c]++
			for j, v := range vec {
				sums[c][j] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			utils.NormalizeL2(sums[c])
			centroids[c] = sums[c]
		}
	}
	x.centroids = centroids
	x.postings = make([][]int64, nlist)
	x.trained = true
}

// nearestCentroid returns the centroid index with the highest inner product.
// Callers must hold mu.
func (x *IVFIndex) nearestCentroid(vec []float32) int {
	best, bestScore := 0, float32(-2)
	for c, cent := range x.centroids {
		if score := InnerProduct(vec, cent); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// Search probes the min(nprobe, nlist) nearest clusters and scores their members.
func (x *IVFIndex) Search(query []float32, topK int) ([]Result, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dim)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if topK <= 0 || len(x.vectors) == 0 || !x.trained || L2Norm(query) < zeroNormEps {
		return nil, nil
	}
	nprobe := x.nprobe
	if nprobe > len(x.centroids) {
		nprobe = len(x.centroids)
	}
	type scoredCluster struct {
		c     int
		score float32
	}
	clusters := make([]scoredCluster, len(x.centroids))
	for c, cent := range x.centroids {
		clusters[c] = scoredCluster{c: c, score: InnerProduct(query, cent)}
	}
	// Partial selection of the nprobe best clusters.
	for i := 0; i < nprobe; i++ {
		best := i
		for j := i + 1; j < len(clusters); j++ {
			if clusters[j].score > clusters[best].score {
				best = j
			}
		}
		clusters[i], clusters[best] = clusters[best], clusters[i]
	}
	var candidates []int64
	for i := 0; i < nprobe; i++ {
		candidates = append(candidates, x.postings[clusters[i].c]...)
	}
	return x.bruteForce(query, candidates, topK), nil
}

// Save writes the index to prefix.vec and prefix_metadata.gob. The vector file
// carries the centroids and posting lists after the common header.
func (x *IVFIndex) Save(prefix string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	f, err := x.openVecFile(prefix, IndexTypeIVF)
	if err != nil {
		return err
	}
	defer f.Close()
	trained := uint32(0)
	if x.trained {
		trained = 1
	}
	if err := writeAll(f, trained, uint32(len(x.centroids))); err != nil {
		return err
	}
	for _, cent := range x.centroids {
		if _, err := f.Write(float32SliceToBytes(cent)); err != nil {
			return fmt.Errorf("write centroid: %w", err)
		}
	}
	for _, posting := range x.postings {
		if err := writeAll(f, uint32(len(posting))); err != nil {
			return err
		}
		for _, id := range posting {
			if err := binary.Write(f, binary.LittleEndian, id); err != nil {
				return fmt.Errorf("write posting id: %w", err)
			}
		}
	}
	if err := x.writeSidecar(prefix, IndexTypeIVF); err != nil {
		return err
	}
	return nil
}

// Load replaces the index contents from the artifacts at prefix.
func (x *IVFIndex) Load(prefix string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	f, err := x.loadVecFile(prefix, IndexTypeIVF)
	if err != nil {
		return err
	}
	defer f.Close()
	var trained, nlist uint32
	if err := readAll(f, &trained, &nlist); err != nil {
		return err
	}
	centroids := make([][]float32, nlist)
	buf := make([]byte, x.dim*4)
	for i := range centroids {
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read centroid %d: %w", i, err)
		}
		centroids[i] = bytesToFloat32Slice(buf)
	}
	postings := make([][]int64, nlist)
	for i := range postings {
		var n uint32
		if err := readAll(f, &n); err != nil {
			return err
		}
		postings[i] = make([]int64, n)
		for j := uint32(0); j < n; j++ {
			if err := binary.Read(f, binary.LittleEndian, &postings[i][j]); err != nil {
				return fmt.Errorf("read posting id: %w", err)
			}
		}
	}
	x.trained = trained == 1
	x.centroids = centroids
	x.postings = postings
	return nil
}

// Stats reports index counters.
func (x *IVFIndex) Stats() models.IndexStats {
	return x.stats(IndexTypeIVF)
}

// Type returns the index type identifier.
func (x *IVFIndex) Type() IndexType {
	return IndexTypeIVF
}

// Close is a no-op for IVFIndex.
func (x *IVFIndex) Close() error {
	return nil
}
