package encoder

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Type selects an encoder strategy.
type Type string

const (
	// TypeCLIP runs a local CLIP-family model.
	TypeCLIP Type = "clip"
	// TypeSigLIP runs a local SigLIP-family model.
	TypeSigLIP Type = "siglip"
	// TypeRemote calls an OpenAI-compatible embeddings endpoint.
	TypeRemote Type = "remote"
	// TypeMock produces deterministic embeddings; tests and demo mode.
	TypeMock Type = "mock"
)

// Config selects and parameterizes an encoder strategy.
type Config struct {
	Type      string `yaml:"type"`
	ModelName string `yaml:"model_name"`
	// ModelDir holds the exported ONNX files for local strategies.
	ModelDir string `yaml:"model_dir"`
	// BaseURL and APIKey configure the remote strategy. The key is read from
	// the environment or flags, never from a saved system.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
	// Dimensions overrides the strategy default (mock, remote).
	Dimensions int `yaml:"dimensions"`
	CacheSize  int `yaml:"cache_size"`
	// FailFast aborts remote encoding on the first failed batch instead of
	// zero-filling its rows.
	FailFast bool `yaml:"fail_fast"`

	Logger *zap.Logger `yaml:"-"`
}

// New creates the encoder selected by cfg.Type. Unsupported types fail fast.
func New(cfg Config) (Encoder, error) {
	switch Type(strings.ToLower(cfg.Type)) {
	case TypeCLIP, "":
		return NewLocalEncoder(CLIPProfile(cfg.ModelName), cfg.ModelDir, cfg.CacheSize)
	case TypeSigLIP:
		return NewLocalEncoder(SigLIPProfile(cfg.ModelName), cfg.ModelDir, cfg.CacheSize)
	case TypeRemote:
		opts := []RemoteOption{}
		if cfg.FailFast {
			opts = append(opts, WithFailFast())
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, WithDimensions(cfg.Dimensions))
		}
		if cfg.Logger != nil {
			opts = append(opts, WithRemoteLogger(cfg.Logger))
		}
		return NewRemoteEncoder(cfg.ModelName, cfg.BaseURL, cfg.APIKey, opts...)
	case TypeMock:
		return NewMockEncoder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported encoder type: %s (supported: clip, siglip, remote, mock)", cfg.Type)
	}
}
