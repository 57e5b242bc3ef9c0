package models

// SearchResult is a single retrieval hit: an image path with its similarity
// score and 1-based rank. Score is the raw inner product of unit-normalized
// vectors (cosine similarity); it is not clamped to [0,1].
type SearchResult struct {
	ImagePath string       `json:"image_path"`
	Score     float32      `json:"similarity_score"`
	Rank      int          `json:"rank"`
	Metadata  *ImageRecord `json:"metadata,omitempty"`
	// KeywordScore is the normalized filename/path match score when hybrid
	// search is enabled; zero otherwise.
	KeywordScore float64 `json:"keyword_score,omitempty"`
}

// SearchRequest is a text query against the index.
type SearchRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	WithMetadata bool   `json:"with_metadata"`
	// Hybrid enables filename keyword fusion when the system has a keyword index.
	Hybrid bool `json:"hybrid,omitempty"`
}

// ImageSearchRequest is an image query against the index, by path.
type ImageSearchRequest struct {
	ImagePath    string `json:"image_path"`
	TopK         int    `json:"top_k"`
	WithMetadata bool   `json:"with_metadata"`
}

// IngestRequest asks the server to ingest the given image paths.
type IngestRequest struct {
	Paths []string `json:"paths"`
}

// SystemStats reports retrieval system counters.
type SystemStats struct {
	EncoderType  string     `json:"encoder_type"`
	ModelName    string     `json:"model_name"`
	TotalImages  int        `json:"total_images"`
	EmbeddingDim int        `json:"embedding_dim"`
	Index        IndexStats `json:"index_stats"`
}

// IndexStats reports vector index counters.
type IndexStats struct {
	TotalVectors int    `json:"total_vectors"`
	EmbeddingDim int    `json:"embedding_dim"`
	IndexType    string `json:"index_type"`
	TotalPaths   int    `json:"total_images"`
}
