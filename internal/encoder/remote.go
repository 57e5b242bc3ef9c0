package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRemoteBaseURL = "https://integrate.api.nvidia.com/v1"
	defaultRemoteModel   = "nvidia/nvclip"
	defaultRemoteTimeout = 30 * time.Second

	// Provider request limits. Image payloads are larger, so the cap is lower.
	maxRemoteImageBatch = 10
	maxRemoteTextBatch  = 20
)

// RemoteEncoder sends batched inputs to an OpenAI-compatible embeddings
// endpoint. Images travel as base64 JPEG data URIs, text as raw strings.
//
// Failure policy is explicit: with FailFast unset (the default), a failed
// batch request fills its rows with zero vectors and encoding continues, so a
// partial provider outage degrades those rows to zero similarity instead of
// aborting the call. With FailFast set, the first failed batch aborts.
// Decode errors on local image files always abort; they are caller bugs, not
// provider outages.
type RemoteEncoder struct {
	modelName string
	baseURL   string
	apiKey    string
	dims      int
	failFast  bool
	client    *http.Client
	logger    *zap.Logger
}

// RemoteOption configures a RemoteEncoder.
type RemoteOption func(*RemoteEncoder)

// WithFailFast makes failed batch requests abort instead of zero-filling.
func WithFailFast() RemoteOption {
	return func(e *RemoteEncoder) { e.failFast = true }
}

// WithRemoteLogger sets a logger for zero-filled batch warnings.
func WithRemoteLogger(l *zap.Logger) RemoteOption {
	return func(e *RemoteEncoder) { e.logger = l }
}

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(e *RemoteEncoder) { e.client.Timeout = d }
}

// WithDimensions overrides the embedding dimension derived from the model name.
func WithDimensions(dims int) RemoteOption {
	return func(e *RemoteEncoder) { e.dims = dims }
}

// NewRemoteEncoder creates a remote encoder for the given model. An API key is
// required; keys are never persisted with a saved system.
func NewRemoteEncoder(modelName, baseURL, apiKey string, opts ...RemoteOption) (*RemoteEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("remote encoder requires an API key")
	}
	if modelName == "" {
		modelName = defaultRemoteModel
	}
	if baseURL == "" {
		baseURL = defaultRemoteBaseURL
	}
	e := &RemoteEncoder{
		modelName: modelName,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		dims:      remoteModelDimensions(modelName),
		client:    &http.Client{Timeout: defaultRemoteTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// remoteModelDimensions maps known model families to their embedding width.
func remoteModelDimensions(modelName string) int {
	name := strings.ToLower(modelName)
	switch {
	case strings.Contains(name, "nvclip"):
		return 512
	case strings.Contains(name, "dinov2"):
		return 1024
	default:
		return 512
	}
}

type embeddingsRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// embedBatch posts one batch to the embeddings endpoint.
func (e *RemoteEncoder) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embeddingsRequest{
		Input:          inputs,
		Model:          e.modelName,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, body)
	}
	var apiResp embeddingsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(apiResp.Data))
	}
	out := make([][]float32, len(inputs))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("invalid embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// encodeInputs runs the batched request loop with the zero-fill failure policy.
func (e *RemoteEncoder) encodeInputs(ctx context.Context, inputs []string, batchSize, maxBatch int) ([][]float32, error) {
	if batchSize <= 0 || batchSize > maxBatch {
		batchSize = maxBatch
	}
	out := make([][]float32, len(inputs))
	err := batchRange(len(inputs), batchSize, func(start, end int) error {
		rows, err := e.embedBatch(ctx, inputs[start:end])
		if err != nil {
			if e.failFast {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if e.logger != nil {
				e.logger.Warn("remote embedding batch failed; filling with zero vectors",
					zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			}
			for i := start; i < end; i++ {
				out[i] = make([]float32, e.dims)
			}
			return nil
		}
		copy(out[start:end], rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, row := range out {
		normalizeGuarded(row)
	}
	return out, nil
}

// EncodeImages re-encodes each image as a JPEG data URI and embeds the batches.
func (e *RemoteEncoder) EncodeImages(ctx context.Context, images []ImageInput, batchSize int) ([][]float32, error) {
	payloads := make([]string, len(images))
	for i, in := range images {
		img, err := in.decode()
		if err != nil {
			return nil, err
		}
		uri, err := jpegDataURI(img)
		if err != nil {
			return nil, err
		}
		payloads[i] = uri
	}
	return e.encodeInputs(ctx, payloads, batchSize, maxRemoteImageBatch)
}

// EncodeText embeds the text batches.
func (e *RemoteEncoder) EncodeText(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	return e.encodeInputs(ctx, texts, batchSize, maxRemoteTextBatch)
}

// Dimensions returns the embedding dimension for the configured model.
func (e *RemoteEncoder) Dimensions() int {
	return e.dims
}

// ModelName returns the remote model identifier.
func (e *RemoteEncoder) ModelName() string {
	return e.modelName
}

// Close is a no-op for RemoteEncoder.
func (e *RemoteEncoder) Close() error {
	return nil
}
