package retrieval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/encoder"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/vector"
)

// systemConfig is the JSON document written next to the index artifacts.
// It never contains credentials; a loaded remote system is given a fresh key.
type systemConfig struct {
	SystemID      string                        `json:"system_id"`
	EncoderType   string                        `json:"encoder_type"`
	ModelName     string                        `json:"model_name"`
	BaseURL       string                        `json:"base_url,omitempty"`
	ModelDir      string                        `json:"model_dir,omitempty"`
	IndexType     string                        `json:"index_type"`
	EmbeddingDim  int                           `json:"embedding_dim"`
	TotalImages   int                           `json:"total_images"`
	ImageDatabase map[string]models.ImageRecord `json:"image_database"`
	SavedAt       time.Time                     `json:"saved_at"`
}

func configPath(prefix string) string {
	return prefix + "_config.json"
}

// imageDatabase snapshots the indexed path to record mapping from the index
// sidecar, so the config document carries the full catalog of what was saved.
func (s *System) imageDatabase() map[string]models.ImageRecord {
	total := s.index.Stats().TotalVectors
	db := make(map[string]models.ImageRecord, total)
	for id := int64(0); id < int64(total); id++ {
		if rec, ok := s.index.MetadataOf(id); ok && rec.Path != "" {
			db[rec.Path] = rec
			continue
		}
		if path, ok := s.index.PathOf(id); ok {
			db[path] = models.ImageRecord{Path: path, Filename: baseName(path)}
		}
	}
	return db
}

// SaveSystem writes the index artifacts and a config document under prefix:
// prefix.vec, prefix_metadata.gob and prefix_config.json.
func (s *System) SaveSystem(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create save directory: %w", err)
		}
	}
	if err := s.index.Save(prefix); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	cfg := systemConfig{
		SystemID:      uuid.NewString(),
		EncoderType:   s.encoderType(),
		ModelName:     s.enc.ModelName(),
		BaseURL:       s.encCfg.BaseURL,
		ModelDir:      s.encCfg.ModelDir,
		IndexType:     string(s.index.Type()),
		EmbeddingDim:  s.enc.Dimensions(),
		TotalImages:   s.index.Stats().TotalVectors,
		ImageDatabase: s.imageDatabase(),
		SavedAt:       time.Now(),
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath(prefix), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	s.logger.Info("system saved",
		zap.String("prefix", prefix),
		zap.String("system_id", cfg.SystemID),
		zap.Int("total_images", cfg.TotalImages))
	return nil
}

// LoadSystem reconstructs a system from the artifacts at prefix. The encoder
// is rebuilt from the saved configuration; apiKey supplies the credential for
// remote encoders because keys are never persisted. Missing artifacts are an
// error.
func LoadSystem(prefix, apiKey string, opts ...Option) (*System, error) {
	data, err := os.ReadFile(configPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("read system config: %w", err)
	}
	var cfg systemConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse system config: %w", err)
	}

	encCfg := encoder.Config{
		Type:       cfg.EncoderType,
		ModelName:  cfg.ModelName,
		ModelDir:   cfg.ModelDir,
		BaseURL:    cfg.BaseURL,
		APIKey:     apiKey,
		Dimensions: cfg.EmbeddingDim,
	}
	enc, err := encoder.New(encCfg)
	if err != nil {
		return nil, fmt.Errorf("recreate encoder: %w", err)
	}

	idx, err := vector.Open(prefix)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}
	if idx.Dimensions() != enc.Dimensions() {
		_ = enc.Close()
		_ = idx.Close()
		return nil, fmt.Errorf("saved index dimension %d does not match encoder dimension %d",
			idx.Dimensions(), enc.Dimensions())
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
	s.logger.Info("system loaded",
		zap.String("prefix", prefix),
		zap.String("system_id", cfg.SystemID),
		zap.Int("total_images", idx.Stats().TotalVectors))
	return s, nil
}
