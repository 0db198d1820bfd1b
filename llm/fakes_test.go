package llm

import (
	"context"
	"io"
)

// runeTokenizer gives tests deterministic token counts: one token per rune.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	ids := make([]int, 0, len(text))
	for range text {
		ids = append(ids, 1)
	}
	return ids
}

func (t runeTokenizer) Count(text string) int { return len(t.Encode(text)) }

func (runeTokenizer) Name() string { return "rune" }

// sliceReader replays a fixed chunk sequence, then io.EOF or a scripted
// failure.
type sliceReader struct {
	chunks []*Chunk
	i      int
	err    error
	closed bool
}

func (r *sliceReader) Next(ctx context.Context) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.i < len(r.chunks) {
		c := r.chunks[r.i]
		r.i++
		return c, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, io.EOF
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

// scriptedUpstream pops one scripted outcome per invocation.
type scriptedUpstream struct {
	id          string
	leadingRole bool
	paramErr    error

	completions []func() (*Completion, error)
	opens       []func() (ChunkReader, error)

	completeCalls int
	openCalls     int
}

func (u *scriptedUpstream) ID() string {
	if u.id == "" {
		return "fake"
	}
	return u.id
}

func (u *scriptedUpstream) LeadingRoleChunk() bool { return u.leadingRole }

func (u *scriptedUpstream) ValidateParams(Parameters) error { return u.paramErr }

func (u *scriptedUpstream) Complete(ctx context.Context, req *ChatRequest) (*Completion, error) {
	step := u.completeCalls
	u.completeCalls++
	if step >= len(u.completions) {
		step = len(u.completions) - 1
	}
	return u.completions[step]()
}

func (u *scriptedUpstream) Open(ctx context.Context, req *ChatRequest) (ChunkReader, error) {
	step := u.openCalls
	u.openCalls++
	if step >= len(u.opens) {
		step = len(u.opens) - 1
	}
	return u.opens[step]()
}

func testCatalog() *ProviderConfig {
	return &ProviderConfig{
		ID:   "fake",
		Name: "Fake",
		Models: map[string]ModelConfig{
			"gpt-4o": {
				InputTokenCost:  FlatCost(0.001),
				OutputTokenCost: FlatCost(0.002),
			},
		},
	}
}

func strptr(s string) *string { return &s }

func textCompletion(model, content string, usage *Usage) *Completion {
	return &Completion{
		ID:      "cmpl-1",
		Object:  "chat.completion",
		Created: 1700000000,
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			FinishReason: "stop",
			Message: &AssistantMessage{
				Role:    RoleAssistant,
				Content: strptr(content),
			},
		}},
		Usage: usage,
	}
}

func rateLimited(provider string) *Error {
	return &Error{
		Code:       ErrRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: 429,
		Retryable:  true,
		Provider:   provider,
	}
}

func roleChunk(model string) *Chunk {
	return &Chunk{
		ID:      "chunk-0",
		Object:  "chat.completion.chunk",
		Created: 1700000000,
		Model:   model,
		Choices: []Choice{{
			Index: 0,
			Delta: &Delta{Role: RoleAssistant},
		}},
	}
}

func textChunk(model, s string) *Chunk {
	return &Chunk{
		ID:      "chunk-1",
		Object:  "chat.completion.chunk",
		Created: 1700000000,
		Model:   model,
		Choices: []Choice{{
			Index: 0,
			Delta: &Delta{Content: strptr(s)},
		}},
	}
}

func finishChunk(model, reason string) *Chunk {
	return &Chunk{
		ID:      "chunk-z",
		Object:  "chat.completion.chunk",
		Created: 1700000000,
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			FinishReason: reason,
			Delta:        &Delta{},
		}},
	}
}
