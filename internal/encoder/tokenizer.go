package encoder

import "strings"

// Tokenizer produces token ids for a text encoder (input_ids, attention_mask).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer is a lowercased word-split tokenizer with hash-based token
// ids bracketed by start/end markers. It is a stand-in for a full BPE
// vocabulary; retrieval quality depends on the model checkpoint matching it.
type SimpleTokenizer struct {
	// StartID and EndID bracket every sequence (CLIP uses 49406/49407).
	StartID int64
	EndID   int64
	// VocabSize bounds hashed token ids.
	VocabSize int64
}

// NewCLIPTokenizer returns a tokenizer with CLIP's special token ids.
func NewCLIPTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{StartID: 49406, EndID: 49407, VocabSize: 49152}
}

// Tokenize splits text into words and produces padded token ids up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 0 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = t.StartID
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word)) % t.VocabSize
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = t.EndID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

// HashString returns a deterministic non-negative hash for token id derivation.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
