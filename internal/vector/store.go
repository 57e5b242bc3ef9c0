package vector

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/pkg/utils"
)

const (
	vecMagic   = "GZVX"
	vecVersion = uint32(1)
)

// store holds the state common to all index structures: the raw vectors, the
// parallel path list, and per-id metadata. Ids are positions in the slices.
type store struct {
	dim     int
	vectors [][]float32
	paths   []string
	meta    map[int64]models.ImageRecord
	mu      sync.RWMutex
}

func newStore(dim int) (store, error) {
	if dim <= 0 {
		return store{}, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return store{
		dim:  dim,
		meta: make(map[int64]models.ImageRecord),
	}, nil
}

// appendVectors validates, copies, and re-normalizes the batch, then appends it.
// Returns the id of the first appended vector. Callers must hold mu.
func (s *store) appendVectors(vectors [][]float32, paths []string, meta []models.ImageRecord) (int64, error) {
	if len(vectors) != len(paths) {
		return 0, fmt.Errorf("vectors and paths length mismatch: %d vs %d", len(vectors), len(paths))
	}
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return 0, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), s.dim)
		}
	}
	startID := int64(len(s.paths))
	for i, vec := range vectors {
		cp := make([]float32, s.dim)
		copy(cp, vec)
		utils.NormalizeL2(cp)
		s.vectors = append(s.vectors, cp)
		s.paths = append(s.paths, paths[i])
		if i < len(meta) {
			s.meta[startID+int64(i)] = meta[i]
		}
	}
	return startID, nil
}

func (s *store) PathOf(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= int64(len(s.paths)) {
		return "", false
	}
	return s.paths[id], true
}

func (s *store) MetadataOf(id int64) (models.ImageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.meta[id]
	return rec, ok
}

func (s *store) Dimensions() int {
	return s.dim
}

func (s *store) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *store) stats(t IndexType) models.IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.IndexStats{
		TotalVectors: len(s.vectors),
		EmbeddingDim: s.dim,
		IndexType:    string(t),
		TotalPaths:   len(s.paths),
	}
}

// sidecar is the durable metadata companion of the vector file.
type sidecar struct {
	Dim       int
	IndexType string
	Paths     []string
	Meta      map[int64]models.ImageRecord
}

func sidecarPath(prefix string) string { return prefix + "_metadata.gob" }
func vecPath(prefix string) string     { return prefix + ".vec" }

// writeSidecar persists paths and metadata. Callers must hold mu.
func (s *store) writeSidecar(prefix string, t IndexType) error {
	f, err := os.Create(sidecarPath(prefix))
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}
	defer f.Close()
	side := sidecar{
		Dim:       s.dim,
		IndexType: string(t),
		Paths:     s.paths,
		Meta:      s.meta,
	}
	if err := gob.NewEncoder(f).Encode(side); err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return nil
}

func readSidecar(prefix string) (*sidecar, error) {
	f, err := os.Open(sidecarPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("open sidecar: %w", err)
	}
	defer f.Close()
	var side sidecar
	if err := gob.NewDecoder(f).Decode(&side); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	return &side, nil
}

// openVecFile creates the vector file and writes the common header and vectors.
// The caller appends its structure-specific section and closes the file.
// Callers must hold mu.
func (s *store) openVecFile(prefix string, t IndexType) (*os.File, error) {
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	f, err := os.Create(vecPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("create index file: %w", err)
	}
	if _, err := f.Write([]byte(vecMagic)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write magic: %w", err)
	}
	if err := writeAll(f, vecVersion, uint32(len(t))); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Write([]byte(t)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write index type: %w", err)
	}
	if err := writeAll(f, uint32(s.dim), uint32(len(s.vectors))); err != nil {
		f.Close()
		return nil, err
	}
	for _, vec := range s.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			f.Close()
			return nil, fmt.Errorf("write vector: %w", err)
		}
	}
	return f, nil
}

// loadVecFile opens the vector file, validates the header against the expected
// type, and replaces the store contents from the file and sidecar. The caller
// reads its structure-specific section from the returned file and closes it.
// Callers must hold mu.
func (s *store) loadVecFile(prefix string, t IndexType) (*os.File, error) {
	side, err := readSidecar(prefix)
	if err != nil {
		return nil, err
	}
	if side.IndexType != string(t) {
		return nil, fmt.Errorf("index type mismatch: file has %q, index is %q", side.IndexType, t)
	}
	f, err := os.Open(vecPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	magic := make([]byte, len(vecMagic))
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != vecMagic {
		f.Close()
		return nil, fmt.Errorf("not a vector index file: %s", vecPath(prefix))
	}
	var version, typeLen uint32
	if err := readAll(f, &version, &typeLen); err != nil {
		f.Close()
		return nil, err
	}
	if version != vecVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported index file version %d", version)
	}
	typeBytes := make([]byte, typeLen)
	if _, err := io.ReadFull(f, typeBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("read index type: %w", err)
	}
	if string(typeBytes) != string(t) {
		f.Close()
		return nil, fmt.Errorf("index type mismatch: file has %q, index is %q", typeBytes, t)
	}
	var dim, count uint32
	if err := readAll(f, &dim, &count); err != nil {
		f.Close()
		return nil, err
	}
	if int(dim) != side.Dim || int(count) != len(side.Paths) {
		f.Close()
		return nil, fmt.Errorf("index file and sidecar disagree: dim %d/%d, count %d/%d",
			dim, side.Dim, count, len(side.Paths))
	}
	vectors := make([][]float32, 0, count)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			f.Close()
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	s.dim = int(dim)
	s.vectors = vectors
	s.paths = side.Paths
	s.meta = side.Meta
	if s.meta == nil {
		s.meta = make(map[int64]models.ImageRecord)
	}
	return f, nil
}

func writeAll(w io.Writer, vals ...uint32) error {
	for _, v := range vals {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header field: %w", err)
		}
	}
	return nil
}

func readAll(r io.Reader, vals ...*uint32) error {
	for _, v := range vals {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read header field: %w", err)
		}
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// bruteForce scores the query against the given candidate ids (or all vectors
// when ids is nil) and returns the topK by descending inner product.
// Callers must hold mu.
func (s *store) bruteForce(query []float32, ids []int64, topK int) []Result {
	type scored struct {
		id    int64
		score float32
	}
	var scores []scored
	if ids == nil {
		scores = make([]scored, 0, len(s.vectors))
		for i, vec := range s.vectors {
			scores = append(scores, scored{id: int64(i), score: InnerProduct(query, vec)})
		}
	} else {
		scores = make([]scored, 0, len(ids))
		for _, id := range ids {
			if id < 0 || id >= int64(len(s.vectors)) {
				continue
			}
			scores = append(scores, scored{id: id, score: InnerProduct(query, s.vectors[id])})
		}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]Result, 0, topK)
	for i := 0; i < topK; i++ {
		results = append(results, Result{
			ID:    scores[i].id,
			Path:  s.paths[scores[i].id],
			Score: scores[i].score,
		})
	}
	return results
}
