//go:build cgo
// +build cgo

// Local vision-language model inference (requires CGO and the onnxruntime library).

package encoder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LocalEncoder runs a vision-language model with ONNX Runtime. The model
// directory must contain visual.onnx and textual.onnx exported with the
// standard CLIP-style input/output names. Weights load once at construction;
// encoding is a local, deterministic forward pass on the calling goroutine.
type LocalEncoder struct {
	profile Profile
	cache   *Cache

	visual  *ort.AdvancedSession
	textual *ort.AdvancedSession

	// Pre-allocated single-item tensors; Run reuses them per input.
	pixelTensor   *ort.Tensor[float32]
	imageOut      *ort.Tensor[float32]
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	textOut       *ort.Tensor[float32]

	tokenizer Tokenizer
	mu        sync.Mutex
}

// NewLocalEncoder loads the visual and textual sessions from modelDir.
func NewLocalEncoder(profile Profile, modelDir string, cacheSize int) (*LocalEncoder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	e := &LocalEncoder{
		profile:   profile,
		cache:     NewCache(cacheSize),
		tokenizer: NewCLIPTokenizer(),
	}

	size := int64(profile.ImageSize)
	dims := int64(profile.Dimensions)
	tokens := int64(profile.MaxTokens)

	var err error
	e.pixelTensor, err = ort.NewTensor(ort.NewShape(1, 3, size, size), make([]float32, 3*size*size))
	if err != nil {
		return nil, fmt.Errorf("create pixel tensor: %w", err)
	}
	e.imageOut, err = ort.NewTensor(ort.NewShape(1, dims), make([]float32, dims))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create image output tensor: %w", err)
	}
	e.inputIDs, err = ort.NewTensor(ort.NewShape(1, tokens), make([]int64, tokens))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	e.attentionMask, err = ort.NewTensor(ort.NewShape(1, tokens), make([]int64, tokens))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	e.textOut, err = ort.NewTensor(ort.NewShape(1, dims), make([]float32, dims))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create text output tensor: %w", err)
	}

	e.visual, err = ort.NewAdvancedSession(
		filepath.Join(modelDir, "visual.onnx"),
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOut},
		nil,
	)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create visual session: %w", err)
	}
	e.textual, err = ort.NewAdvancedSession(
		filepath.Join(modelDir, "textual.onnx"),
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask},
		[]ort.ArbitraryTensor{e.textOut},
		nil,
	)
	if err != nil {
		_ = e.visual.Destroy()
		e.destroyTensors()
		return nil, fmt.Errorf("create textual session: %w", err)
	}
	return e, nil
}

// EncodeImages runs the visual forward pass per image. Batch size bounds how
// many decoded images are held at once; outputs are per-image deterministic.
func (e *LocalEncoder) EncodeImages(ctx context.Context, images []ImageInput, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(images))
	err := batchRange(len(images), batchSize, func(start, end int) error {
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if cached, ok := e.cache.Get("img:" + images[i].key()); ok {
				out[i] = cached
				continue
			}
			img, err := images[i].decode()
			if err != nil {
				return err
			}
			emb, err := e.runVisual(pixelTensor(img, e.profile.ImageSize, e.profile.Mean, e.profile.Std))
			if err != nil {
				return err
			}
			e.cache.Set("img:"+images[i].key(), emb)
			out[i] = emb
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *LocalEncoder) runVisual(pixels []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copy(e.pixelTensor.GetData(), pixels)
	if err := e.visual.Run(); err != nil {
		return nil, fmt.Errorf("visual inference failed: %w", err)
	}
	emb := make([]float32, e.profile.Dimensions)
	copy(emb, e.imageOut.GetData())
	normalizeGuarded(emb)
	return emb, nil
}

// EncodeText runs the textual forward pass per string.
func (e *LocalEncoder) EncodeText(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := batchRange(len(texts), batchSize, func(start, end int) error {
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if cached, ok := e.cache.Get("txt:" + texts[i]); ok {
				out[i] = cached
				continue
			}
			emb, err := e.runTextual(texts[i])
			if err != nil {
				return err
			}
			e.cache.Set("txt:"+texts[i], emb)
			out[i] = emb
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *LocalEncoder) runTextual(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, mask := e.tokenizer.Tokenize(text, e.profile.MaxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	if err := e.textual.Run(); err != nil {
		return nil, fmt.Errorf("textual inference failed: %w", err)
	}
	emb := make([]float32, e.profile.Dimensions)
	copy(emb, e.textOut.GetData())
	normalizeGuarded(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension for the loaded model family.
func (e *LocalEncoder) Dimensions() int {
	return e.profile.Dimensions
}

// ModelName returns the checkpoint identifier.
func (e *LocalEncoder) ModelName() string {
	return e.profile.ModelName
}

func (e *LocalEncoder) destroyTensors() {
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOut != nil {
		_ = e.imageOut.Destroy()
		e.imageOut = nil
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
		e.inputIDs = nil
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
		e.attentionMask = nil
	}
	if e.textOut != nil {
		_ = e.textOut.Destroy()
		e.textOut = nil
	}
}

// Close destroys the sessions and tensors.
func (e *LocalEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.visual != nil {
		err = e.visual.Destroy()
		e.visual = nil
	}
	if e.textual != nil {
		if derr := e.textual.Destroy(); err == nil {
			err = derr
		}
		e.textual = nil
	}
	e.destroyTensors()
	return err
}
