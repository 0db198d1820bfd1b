package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmgate/llmgate/llm/retry"
	"github.com/llmgate/llmgate/llm/tokenizer"
)

// Engine drives a single provider through validation, retry, dispatch,
// normalization and metrics. It holds no per-call state; one engine may serve
// many concurrent calls.
type Engine struct {
	upstream Upstream
	cfg      *ProviderConfig
	tok      tokenizer.Tokenizer
	policy   *retry.Policy
	logger   *zap.Logger
}

type settings struct {
	tok    tokenizer.Tokenizer
	policy *retry.Policy
	logger *zap.Logger
}

type Option func(*settings)

// WithTokenizer overrides the provider-resolved token encoder.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(s *settings) { s.tok = t }
}

// WithRetryPolicy overrides the pacing between rate-limited attempts.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(s *settings) { s.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		policy: retry.DefaultPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEngine builds an engine around an already-constructed adapter. Most
// callers go through Registry.Connect instead.
func NewEngine(up Upstream, cfg *ProviderConfig, opts ...Option) *Engine {
	return newEngine(up, cfg, newSettings(opts))
}

func newEngine(up Upstream, cfg *ProviderConfig, s *settings) *Engine {
	tok := s.tok
	if tok == nil {
		tok = tokenizer.ForProvider(up.ID())
	}
	return &Engine{
		upstream: up,
		cfg:      cfg,
		tok:      tok,
		policy:   s.policy,
		logger:   s.logger,
	}
}

// ChatResult is the outcome of a dispatched call: a completed envelope for
// one-shot requests, or an open stream for streaming ones.
type ChatResult struct {
	Envelope *Envelope
	Stream   *Stream
}

func (r *ChatResult) IsStream() bool { return r.Stream != nil }

// Chat validates and dispatches a request. For non-stream requests the
// returned result holds the final envelope; for streams it holds a pull
// iterator whose terminator envelope carries the metrics.
func (e *Engine) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if req.IsStream {
		s, err := e.openStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ChatResult{Stream: s}, nil
	}
	env, err := e.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Envelope: env}, nil
}

// Event is one emission of the cooperative call flavor.
type Event struct {
	Envelope *Envelope `json:"envelope,omitempty"`
	Err      *Error    `json:"error,omitempty"`
}

// ChatAsync is the cooperative flavor of Chat: envelopes are delivered on the
// returned channel in emission order and the channel is closed when the call
// ends. Validation and dispatch errors surface synchronously; mid-stream
// errors arrive as the final event. Cancelling ctx stops delivery promptly.
func (e *Engine) ChatAsync(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	res, err := e.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		if !res.IsStream() {
			select {
			case ch <- Event{Envelope: res.Envelope}:
			case <-ctx.Done():
			}
			return
		}

		s := res.Stream
		defer s.Close()
		for {
			env, err := s.Next(ctx)
			if err != nil {
				if err == ErrStreamDone {
					return
				}
				select {
				case ch <- Event{Err: AsError(err)}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case ch <- Event{Envelope: env}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// validate performs structural validation, catalog validation, then delegates
// parameter ranges to the adapter. It never touches the upstream.
func (e *Engine) validate(req *ChatRequest) error {
	if req == nil {
		return validationErr("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return validationErr("model is required")
	}
	if req.ChatInput.IsZero() {
		return validationErr("chat_input is required")
	}
	if !req.ChatInput.IsText() && len(req.ChatInput.Messages()) == 0 {
		return validationErr("chat_input message sequence must not be empty")
	}
	if req.Retries < 0 {
		return validationErr("retries must be non-negative")
	}
	if _, err := e.cfg.Model(req.Model); err != nil {
		return err
	}
	return e.upstream.ValidateParams(req.Parameters)
}

// complete runs the retry loop for one-shot calls: at most retries+1 upstream
// invocations, retrying only on rate limits.
func (e *Engine) complete(ctx context.Context, req *ChatRequest) (*Envelope, error) {
	for attempt := 0; attempt <= req.Retries; attempt++ {
		if attempt > 0 {
			if err := e.policy.Wait(ctx, attempt); err != nil {
				return nil, cancelledErr(e.cfg.ID, err)
			}
		}

		start := time.Now()
		comp, err := e.upstream.Complete(ctx, req)
		if err != nil {
			if IsRateLimited(err) {
				e.logger.Warn("upstream rate limited",
					zap.String("provider", e.cfg.ID),
					zap.String("model", req.Model),
					zap.Int("attempt", attempt),
				)
				continue
			}
			if ctx.Err() != nil {
				return nil, cancelledErr(e.cfg.ID, ctx.Err())
			}
			return nil, AsError(err)
		}
		return e.normalize(comp, req, start)
	}
	return nil, tooManyRequests(e.cfg.ID)
}

// openStream runs the same retry loop around opening the upstream stream.
// Once the stream is open, retry no longer applies.
func (e *Engine) openStream(ctx context.Context, req *ChatRequest) (*Stream, error) {
	for attempt := 0; attempt <= req.Retries; attempt++ {
		if attempt > 0 {
			if err := e.policy.Wait(ctx, attempt); err != nil {
				return nil, cancelledErr(e.cfg.ID, err)
			}
		}

		start := time.Now()
		rd, err := e.upstream.Open(ctx, req)
		if err != nil {
			if IsRateLimited(err) {
				e.logger.Warn("upstream rate limited",
					zap.String("provider", e.cfg.ID),
					zap.String("model", req.Model),
					zap.Int("attempt", attempt),
				)
				continue
			}
			if ctx.Err() != nil {
				return nil, cancelledErr(e.cfg.ID, ctx.Err())
			}
			return nil, AsError(err)
		}
		return newStream(e, req, rd, start), nil
	}
	return nil, tooManyRequests(e.cfg.ID)
}

func tooManyRequests(provider string) *Error {
	return &Error{
		Code:       ErrRateLimited,
		Message:    "too many requests",
		HTTPStatus: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// normalize wraps a one-shot upstream completion in the canonical envelope.
func (e *Engine) normalize(comp *Completion, req *ChatRequest, start time.Time) (*Envelope, error) {
	if comp == nil || len(comp.Choices) == 0 || comp.Choices[0].Message == nil {
		return nil, protocolErr(e.cfg.ID, "upstream completion has no message choice")
	}

	now := time.Now()
	model, deployment := resolveModel(req.Model, comp.Model)

	object := comp.Object
	if object == "" {
		object = "chat.completion"
	}

	return &Envelope{
		ID:         uuid.NewString(),
		Object:     object,
		Created:    comp.Created,
		Choices:    comp.Choices,
		Usage:      comp.Usage,
		ChatInput:  req.ChatInput.Last(),
		ChatOutput: comp.Choices[0].Message.Content,
		Context:    req.ChatInput.Context(),
		Provider:   e.cfg.ID,
		Model:      model,
		Deployment: deployment,
		Timestamp:  unixSeconds(now),
		Parameters: req.Parameters,
		Metrics:    e.usageMetrics(comp.Usage, req.Model, start, now),
	}, nil
}

// resolveModel applies the prefix rule: the upstream-reported name wins when
// it is a more specific variant of the requested model, and then also fills
// the deployment field.
func resolveModel(requested, reported string) (model, deployment string) {
	if reported == "" || reported == requested {
		return requested, ""
	}
	if strings.HasPrefix(reported, requested) {
		return reported, reported
	}
	return requested, requested
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
