package encoder

// Profile holds the model-family constants of a local vision-language model:
// default checkpoint name, embedding width, pixel pipeline parameters, and
// text context length. The two supported families differ only in these
// constants; the runtime path is identical.
type Profile struct {
	ModelName  string
	Dimensions int
	ImageSize  int
	Mean       [3]float32
	Std        [3]float32
	MaxTokens  int
}

// CLIPProfile returns the CLIP family profile. modelName overrides the
// default checkpoint identifier when non-empty.
func CLIPProfile(modelName string) Profile {
	if modelName == "" {
		modelName = "openai/clip-vit-base-patch32"
	}
	return Profile{
		ModelName:  modelName,
		Dimensions: 512,
		ImageSize:  224,
		Mean:       [3]float32{0.48145466, 0.4578275, 0.40821073},
		Std:        [3]float32{0.26862954, 0.26130258, 0.27577711},
		MaxTokens:  77,
	}
}

// SigLIPProfile returns the SigLIP family profile. modelName overrides the
// default checkpoint identifier when non-empty.
func SigLIPProfile(modelName string) Profile {
	if modelName == "" {
		modelName = "google/siglip-base-patch16-224"
	}
	return Profile{
		ModelName:  modelName,
		Dimensions: 768,
		ImageSize:  224,
		Mean:       [3]float32{0.5, 0.5, 0.5},
		Std:        [3]float32{0.5, 0.5, 0.5},
		MaxTokens:  64,
	}
}
