package llm

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrStreamDone is returned by Stream.Next after the terminator envelope has
// been delivered.
var ErrStreamDone = errors.New("llm: stream done")

// Stream is the blocking pull iterator over a normalized upstream stream.
// Envelopes preserve upstream chunk order; the terminator envelope, carrying
// the call metrics and a null chat_output, is strictly last. Not safe for
// concurrent Next calls.
type Stream struct {
	eng    *Engine
	req    *ChatRequest
	rd     ChunkReader
	timing streamTiming
	chunks []*Chunk
	done   bool
}

func newStream(e *Engine, req *ChatRequest, rd ChunkReader, start time.Time) *Stream {
	return &Stream{
		eng:    e,
		req:    req,
		rd:     rd,
		timing: streamTiming{start: start},
	}
}

// Next returns the next envelope. After the terminator it returns
// ErrStreamDone. Any error releases the upstream connection; once the first
// envelope has been emitted, errors terminate the call without a metrics
// envelope.
func (s *Stream) Next(ctx context.Context) (*Envelope, error) {
	if s.done {
		return nil, ErrStreamDone
	}

	for {
		if err := ctx.Err(); err != nil {
			s.abort()
			return nil, cancelledErr(s.eng.cfg.ID, err)
		}

		chunk, err := s.rd.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.finish()
			}
			s.abort()
			if ctx.Err() != nil {
				return nil, cancelledErr(s.eng.cfg.ID, ctx.Err())
			}
			return nil, AsError(err)
		}

		env, err := s.observe(chunk)
		if err != nil {
			s.abort()
			return nil, err
		}
		if env == nil {
			continue // terminal stop marker, consumed by the joiner
		}
		return env, nil
	}
}

// Close releases the upstream connection. Pending chunk accumulation is
// dropped; no further envelopes are emitted.
func (s *Stream) Close() error {
	s.done = true
	return s.rd.Close()
}

func (s *Stream) abort() {
	s.done = true
	_ = s.rd.Close()
}

// observe folds one upstream chunk into the per-call state and builds its
// per-chunk envelope. Chunks whose finish_reason is "stop" are accumulated
// but not emitted.
func (s *Stream) observe(chunk *Chunk) (*Envelope, error) {
	if chunk == nil || len(chunk.Choices) == 0 {
		return nil, protocolErr(s.eng.cfg.ID, "upstream chunk has no choices")
	}

	s.timing.observe(time.Now())
	s.chunks = append(s.chunks, chunk)

	choice := chunk.Choices[0]
	if choice.FinishReason == "stop" {
		return nil, nil
	}

	var out *string
	if choice.Delta != nil {
		out = choice.Delta.Content
	}

	model, deployment := resolveModel(s.req.Model, chunk.Model)
	object := chunk.Object
	if object == "" {
		object = "chat.completion.chunk"
	}

	return &Envelope{
		ID:         uuid.NewString(),
		Object:     object,
		Created:    chunk.Created,
		Choices:    chunk.Choices,
		ChatInput:  s.req.ChatInput.Last(),
		ChatOutput: out,
		Context:    s.req.ChatInput.Context(),
		Provider:   s.eng.cfg.ID,
		Model:      model,
		Deployment: deployment,
		Timestamp:  unixSeconds(time.Now()),
		Parameters: s.req.Parameters,
	}, nil
}

// finish joins the accumulated chunks, computes stream metrics, and emits the
// terminator envelope.
func (s *Stream) finish() (*Envelope, error) {
	s.done = true
	_ = s.rd.Close()

	_, raw, err := joinChunks(s.eng.cfg.ID, s.chunks, s.eng.upstream.LeadingRoleChunk())
	if err != nil {
		return nil, err
	}

	// Canonical upstream-reported model: first chunk that names one.
	reported := ""
	for _, c := range s.chunks {
		if c.Model != "" {
			reported = c.Model
			break
		}
	}
	model, deployment := resolveModel(s.req.Model, reported)

	s.timing.end = time.Now()
	metrics := s.eng.streamMetrics(s.req, raw, &s.timing)

	last := s.chunks[len(s.chunks)-1]
	object := last.Object
	if object == "" {
		object = "chat.completion.chunk"
	}

	return &Envelope{
		ID:         uuid.NewString(),
		Object:     object,
		Created:    last.Created,
		Choices:    last.Choices,
		ChatInput:  s.req.ChatInput.Last(),
		ChatOutput: nil,
		Context:    s.req.ChatInput.Context(),
		Provider:   s.eng.cfg.ID,
		Model:      model,
		Deployment: deployment,
		Timestamp:  unixSeconds(s.timing.end),
		Parameters: s.req.Parameters,
		Metrics:    metrics,
	}, nil
}
