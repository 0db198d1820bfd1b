package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken wraps a tiktoken BPE encoding. Initialization is lazy because the
// encoding data may be fetched on first use; if it cannot be loaded the
// estimator takes over so token accounting degrades instead of failing.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
	fallback *Estimator
}

func NewTiktoken(encoding string) *Tiktoken {
	return &Tiktoken{encoding: encoding, fallback: NewEstimator()}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) Encode(text string) []int {
	if err := t.init(); err != nil {
		return t.fallback.Encode(text)
	}
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Count(text string) int { return len(t.Encode(text)) }

func (t *Tiktoken) Name() string { return fmt.Sprintf("tiktoken[%s]", t.encoding) }
