// Package retrieval wires an encoder, a vector index and the metadata stores
// into the image retrieval system.
package retrieval

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/catalog"
	"github.com/hyperjump/gazou/internal/encoder"
	"github.com/hyperjump/gazou/internal/keyword"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/vector"
)

const (
	defaultTopK           = 5
	defaultImageBatchSize = 32
	defaultTextBatchSize  = 32
)

// keywordWeight balances embedding and filename scores in hybrid search.
const keywordWeight = 0.3

// ProgressFunc reports ingestion progress: done of total images encoded so far.
type ProgressFunc func(done, total int)

// System is the retrieval orchestrator. The vector index is the source of
// truth for which images are searchable; the catalog and keyword index are
// secondary surfaces fed by the same ingestion path.
type System struct {
	enc    encoder.Encoder
	encCfg encoder.Config
	index  vector.Index

	catalog  catalog.Catalog
	keywords *keyword.Index
	logger   *zap.Logger
	progress ProgressFunc

	imageBatchSize int
	recursive      bool

	mu sync.Mutex
}

// Option configures a System.
type Option func(*System)

// WithCatalog attaches a metadata catalog fed by ingestion.
func WithCatalog(c catalog.Catalog) Option {
	return func(s *System) { s.catalog = c }
}

// WithKeywordIndex attaches a filename keyword index for hybrid search.
func WithKeywordIndex(k *keyword.Index) Option {
	return func(s *System) { s.keywords = k }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithProgress sets an ingestion progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *System) { s.progress = fn }
}

// WithImageBatchSize overrides the encoding batch size for ingestion.
func WithImageBatchSize(n int) Option {
	return func(s *System) {
		if n > 0 {
			s.imageBatchSize = n
		}
	}
}

// WithRecursive controls whether directory ingestion descends into
// subdirectories. Default is recursive.
func WithRecursive(recursive bool) Option {
	return func(s *System) { s.recursive = recursive }
}

// NewSystem creates a retrieval system over the given encoder configuration
// and index type.
func NewSystem(encCfg encoder.Config, indexType string, opts ...Option) (*System, error) {
	enc, err := encoder.New(encCfg)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	idx, err := vector.New(indexType, enc.Dimensions())
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}
	s := &System{
		enc:            enc,
		encCfg:         encCfg,
		index:          idx,
		logger:         zap.NewNop(),
		imageBatchSize: defaultImageBatchSize,
		recursive:      true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Encoder returns the system's encoder.
func (s *System) Encoder() encoder.Encoder {
	return s.enc
}

// Index returns the system's vector index.
func (s *System) Index() vector.Index {
	return s.index
}

// Search embeds the query text and returns the top-k most similar images with
// 1-based ranks. An empty index yields an empty result.
func (s *System) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	embs, err := s.enc.EncodeText(ctx, []string{req.Query}, defaultTextBatchSize)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	hits, err := s.index.Search(embs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	results := s.toResults(ctx, hits, req.WithMetadata)

	if req.Hybrid && s.keywords != nil {
		results, err = s.fuseKeywords(ctx, req.Query, results, topK, req.WithMetadata)
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// SearchByImage embeds the query image and returns the top-k most similar
// indexed images. The query image itself ranks first when it is indexed.
func (s *System) SearchByImage(ctx context.Context, req models.ImageSearchRequest) ([]models.SearchResult, error) {
	if req.ImagePath == "" {
		return nil, fmt.Errorf("empty image path")
	}
	return s.searchByInput(ctx, encoder.FromPath(req.ImagePath), req.TopK, req.WithMetadata)
}

// SearchByDecodedImage is SearchByImage for an already-decoded image.
func (s *System) SearchByDecodedImage(ctx context.Context, img image.Image, topK int, withMetadata bool) ([]models.SearchResult, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	return s.searchByInput(ctx, encoder.FromImage(img), topK, withMetadata)
}

func (s *System) searchByInput(ctx context.Context, in encoder.ImageInput, topK int, withMetadata bool) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	embs, err := s.enc.EncodeImages(ctx, []encoder.ImageInput{in}, 1)
	if err != nil {
		return nil, fmt.Errorf("encode query image: %w", err)
	}
	hits, err := s.index.Search(embs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	return s.toResults(ctx, hits, withMetadata), nil
}

// toResults converts index hits into ranked search results, resolving
// metadata from the index sidecar first and the catalog as a fallback.
func (s *System) toResults(ctx context.Context, hits []vector.Result, withMetadata bool) []models.SearchResult {
	results := make([]models.SearchResult, len(hits))
	for i, hit := range hits {
		r := models.SearchResult{
			ImagePath: hit.Path,
			Score:     hit.Score,
			Rank:      i + 1,
		}
		if withMetadata {
			if rec, ok := s.index.MetadataOf(hit.ID); ok && rec.Path != "" {
				r.Metadata = &rec
			} else if s.catalog != nil {
				if rec, err := s.catalog.Get(ctx, hit.Path); err == nil {
					r.Metadata = rec
				}
			}
		}
		results[i] = r
	}
	return results
}

// fuseKeywords blends filename keyword scores into the embedding results.
// Keyword scores are normalized by the best hit and weighted; paths found only
// by keyword search join the candidate set with zero embedding score.
func (s *System) fuseKeywords(ctx context.Context, query string, embedding []models.SearchResult, topK int, withMetadata bool) ([]models.SearchResult, error) {
	kwHits, err := s.keywords.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if len(kwHits) == 0 {
		return embedding, nil
	}

	maxScore := kwHits[0].Score
	for _, h := range kwHits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}

	byPath := make(map[string]*models.SearchResult, len(embedding))
	merged := make([]models.SearchResult, len(embedding))
	copy(merged, embedding)
	for i := range merged {
		byPath[merged[i].ImagePath] = &merged[i]
	}
	for _, h := range kwHits {
		norm := h.Score / maxScore
		if r, ok := byPath[h.Path]; ok {
			r.KeywordScore = norm
			continue
		}
		merged = append(merged, models.SearchResult{
			ImagePath:    h.Path,
			KeywordScore: norm,
		})
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return fusedScore(merged[a]) > fusedScore(merged[b])
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	for i := range merged {
		merged[i].Rank = i + 1
		if withMetadata && merged[i].Metadata == nil && s.catalog != nil {
			if rec, err := s.catalog.Get(ctx, merged[i].ImagePath); err == nil {
				merged[i].Metadata = rec
			}
		}
	}
	return merged, nil
}

func fusedScore(r models.SearchResult) float64 {
	return (1-keywordWeight)*float64(r.Score) + keywordWeight*r.KeywordScore
}

// Stats reports system counters.
func (s *System) Stats(ctx context.Context) models.SystemStats {
	idx := s.index.Stats()
	return models.SystemStats{
		EncoderType:  s.encoderType(),
		ModelName:    s.enc.ModelName(),
		TotalImages:  idx.TotalVectors,
		EmbeddingDim: s.enc.Dimensions(),
		Index:        idx,
	}
}

func (s *System) encoderType() string {
	if s.encCfg.Type == "" {
		return string(encoder.TypeCLIP)
	}
	return strings.ToLower(s.encCfg.Type)
}

// RandomImages returns up to n indexed image records sampled without
// replacement. Fewer than n indexed images returns all of them in random
// order.
func (s *System) RandomImages(ctx context.Context, n int) ([]models.ImageRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample size must be positive")
	}
	total := s.index.Stats().TotalVectors
	if n > total {
		n = total
	}
	perm := rand.Perm(total)
	out := make([]models.ImageRecord, 0, n)
	for _, id := range perm[:n] {
		if rec, ok := s.index.MetadataOf(int64(id)); ok && rec.Path != "" {
			out = append(out, rec)
			continue
		}
		path, ok := s.index.PathOf(int64(id))
		if !ok {
			continue
		}
		if s.catalog != nil {
			if rec, err := s.catalog.Get(ctx, path); err == nil {
				out = append(out, *rec)
				continue
			}
		}
		out = append(out, models.ImageRecord{Path: path, Filename: baseName(path)})
	}
	return out, nil
}

// Close releases the encoder and index.
func (s *System) Close() error {
	err := s.enc.Close()
	if cerr := s.index.Close(); err == nil {
		err = cerr
	}
	return err
}
