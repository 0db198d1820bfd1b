// Package batch fans many one-shot requests out through a single engine with
// bounded concurrency. Each item retries independently with jittered backoff
// on retryable failures; results come back in input order.
package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/llmgate/llmgate/llm"
	"github.com/llmgate/llmgate/llm/retry"
)

type Result struct {
	Index    int
	Request  *llm.ChatRequest
	Envelope *llm.Envelope
	Err      error
}

type Runner struct {
	engine      *llm.Engine
	concurrency int64
	maxRetries  int
	policy      *retry.Policy
	logger      *zap.Logger
}

type Option func(*Runner)

// WithConcurrency bounds the number of in-flight calls. Default 5.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = int64(n)
		}
	}
}

// WithMaxRetries sets per-item retry attempts on retryable failures.
// Default 5.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(r *Runner) { r.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func New(engine *llm.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:      engine,
		concurrency: 5,
		maxRetries:  5,
		policy:      retry.DefaultPolicy(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run dispatches every request and blocks until all finish or ctx is
// cancelled. Streaming requests are rejected per item; batch is a one-shot
// surface.
func (r *Runner) Run(ctx context.Context, reqs []*llm.ChatRequest) []Result {
	results := make([]Result, len(reqs))
	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		results[i] = Result{Index: i, Request: req}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}

		wg.Add(1)
		go func(i int, req *llm.ChatRequest) {
			defer wg.Done()
			defer sem.Release(1)
			results[i].Envelope, results[i].Err = r.one(ctx, req)
		}(i, req)
	}

	wg.Wait()
	return results
}

func (r *Runner) one(ctx context.Context, req *llm.ChatRequest) (*llm.Envelope, error) {
	if req.IsStream {
		return nil, &llm.Error{
			Code:       llm.ErrValidation,
			Message:    "batch runner only accepts non-stream requests",
			HTTPStatus: 422,
		}
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.policy.Wait(ctx, attempt); err != nil {
				return nil, err
			}
			r.logger.Debug("batch item retrying",
				zap.Int("attempt", attempt),
				zap.String("model", req.Model),
			)
		}

		result, err := r.engine.Chat(ctx, req)
		if err == nil {
			return result.Envelope, nil
		}
		lastErr = err

		ge := llm.AsError(err)
		if !ge.Retryable && ge.Code != llm.ErrRateLimited {
			return nil, err
		}
	}
	return nil, lastErr
}
