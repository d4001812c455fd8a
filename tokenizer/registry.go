// Package tokenizer maps model identifiers to BPE encodings and context
// window sizes. Lookups are exact first, then by the longest registered
// prefix, so dated snapshots ("gpt-4-0613") resolve through their family
// entry ("gpt-4-").
//
// Encodings are loaded from BPE ranks bundled into the binary; the
// package never touches the network.
package tokenizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Encoding names bundled with the offline loader.
const (
	EncodingCL100K = tiktoken.MODEL_CL100K_BASE
	EncodingP50K   = tiktoken.MODEL_P50K_BASE
	EncodingR50K   = tiktoken.MODEL_R50K_BASE
)

// ErrUnsupportedModel is returned when no encoding or context window is
// registered for a model. The registry never substitutes a default.
var ErrUnsupportedModel = errors.New("tokenizer: unsupported model")

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Encoder turns text into tokens.
type Encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// Registry holds the model tables. The zero value is empty; use
// NewRegistry for the built-in tables. Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	encodings map[string]string
	windows   map[string]int
	cache     map[string]Encoder
}

// NewRegistry returns a registry seeded with the built-in OpenAI tables.
func NewRegistry() *Registry {
	r := &Registry{}
	for model, encoding := range defaultEncodings {
		r.RegisterEncoding(model, encoding)
	}
	for model, window := range defaultWindows {
		r.RegisterContextWindow(model, window)
	}
	return r
}

// RegisterEncoding maps model (or a model prefix) to an encoding name.
func (r *Registry) RegisterEncoding(model, encoding string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encodings == nil {
		r.encodings = make(map[string]string)
	}
	r.encodings[model] = encoding
}

// RegisterContextWindow maps model (or a model prefix) to its context size.
func (r *Registry) RegisterContextWindow(model string, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windows == nil {
		r.windows = make(map[string]int)
	}
	r.windows[model] = tokens
}

// EncodingName resolves the encoding name registered for model.
func (r *Registry) EncodingName(model string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := lookup(r.encodings, model); ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: no encoding for %q", ErrUnsupportedModel, model)
}

// ContextWindow resolves the context window registered for model.
func (r *Registry) ContextWindow(model string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if window, ok := lookup(r.windows, model); ok {
		return window, nil
	}
	return 0, fmt.Errorf("%w: no context window for %q", ErrUnsupportedModel, model)
}

// EncoderFor returns the encoder registered for model.
func (r *Registry) EncoderFor(model string) (Encoder, error) {
	name, err := r.EncodingName(model)
	if err != nil {
		return nil, err
	}
	return r.Encoder(name)
}

// Encoder loads an encoding by name. Loaded encodings are cached.
func (r *Registry) Encoder(name string) (Encoder, error) {
	r.mu.RLock()
	enc, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return enc, nil
	}

	tk, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: loading encoding %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = make(map[string]Encoder)
	}
	r.cache[name] = tk
	return tk, nil
}

// Count encodes text with enc. Special-token text is encoded as ordinary
// text, which can only increase the count.
func Count(enc Encoder, text string) int {
	if text == "" {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// lookup resolves key exactly, then by the longest registered prefix.
func lookup[V any](table map[string]V, key string) (V, bool) {
	if v, ok := table[key]; ok {
		return v, true
	}

	prefixes := make([]string, 0, len(table))
	for prefix := range table {
		if strings.HasPrefix(key, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}
	if len(prefixes) == 0 {
		var zero V
		return zero, false
	}
	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})
	return table[prefixes[0]], true
}
