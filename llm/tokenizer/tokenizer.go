// Package tokenizer resolves the token encoder used for stream-side token
// accounting. Callers may supply their own; otherwise the provider id selects
// a known encoding, defaulting to the cl100k_base BPE that matches most
// providers closely enough for cost estimation.
package tokenizer

import "sync"

// Tokenizer converts text to token ids. The engine only relies on the length
// of the encoding.
type Tokenizer interface {
	Encode(text string) []int
	Count(text string) int
	Name() string
}

// Encodings per provider id. Anything unlisted falls back to cl100k_base.
var providerEncodings = map[string]string{
	"openai": "cl100k_base",
	"azure":  "cl100k_base",
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]Tokenizer)
)

// ForProvider returns the shared tokenizer for a provider id.
func ForProvider(id string) Tokenizer {
	encoding, ok := providerEncodings[id]
	if !ok {
		encoding = "cl100k_base"
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if t, ok := cache[encoding]; ok {
		return t
	}
	t := NewTiktoken(encoding)
	cache[encoding] = t
	return t
}
