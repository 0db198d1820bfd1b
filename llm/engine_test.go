package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/llmgate/llm/retry"
)

func newTestEngine(up Upstream) *Engine {
	return NewEngine(up, testCatalog(),
		WithTokenizer(runeTokenizer{}),
		WithRetryPolicy(retry.NoDelay()),
	)
}

func TestChatNormalizesCompletion(t *testing.T) {
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) {
				return textCompletion("gpt-4o-2024-08", "Hello!", &Usage{
					PromptTokens:     1,
					CompletionTokens: 1,
					TotalTokens:      2,
				}), nil
			},
		},
	}
	eng := newTestEngine(up)

	res, err := eng.Chat(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("Hello"),
	})
	require.NoError(t, err)
	require.False(t, res.IsStream())

	env := res.Envelope
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "chat.completion", env.Object)
	assert.Equal(t, "fake", env.Provider)

	// The upstream reported a more specific variant of the requested model,
	// so it wins and also names the deployment.
	assert.Equal(t, "gpt-4o-2024-08", env.Model)
	assert.Equal(t, "gpt-4o-2024-08", env.Deployment)

	require.NotNil(t, env.ChatOutput)
	assert.Equal(t, "Hello!", *env.ChatOutput)
	assert.Equal(t, "Hello", env.ChatInput.Text())
	require.Len(t, env.Context, 1)
	assert.Equal(t, RoleUser, env.Context[0].Role)

	require.NotNil(t, env.Metrics)
	assert.Equal(t, 1, env.Metrics.InputTokens)
	assert.Equal(t, 1, env.Metrics.OutputTokens)
	assert.Equal(t, 2, env.Metrics.TotalTokens)
	assert.InDelta(t, 0.001*1+0.002*1, env.Metrics.CostUSD, 1e-12)
	assert.GreaterOrEqual(t, env.Metrics.LatencyS, 0.0)
	assert.Nil(t, env.Metrics.TimeToFirstTokenS)
	assert.Nil(t, env.Metrics.InterTokenLatencyS)
	assert.Greater(t, env.Timestamp, 0.0)

	assert.Equal(t, 1, up.completeCalls)
}

func TestResolveModel(t *testing.T) {
	cases := []struct {
		name                string
		requested, reported string
		model, deployment   string
	}{
		{"no report", "gpt-4o", "", "gpt-4o", ""},
		{"same report", "gpt-4o", "gpt-4o", "gpt-4o", ""},
		{"prefix variant wins", "gpt-4o", "gpt-4o-2024-08", "gpt-4o-2024-08", "gpt-4o-2024-08"},
		{"distinct report ignored", "gpt-4o", "different-model", "gpt-4o", "gpt-4o"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model, deployment := resolveModel(tc.requested, tc.reported)
			assert.Equal(t, tc.model, model)
			assert.Equal(t, tc.deployment, deployment)
		})
	}
}

func TestChatRetriesOnRateLimit(t *testing.T) {
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) { return nil, rateLimited("fake") },
			func() (*Completion, error) { return nil, rateLimited("fake") },
			func() (*Completion, error) {
				return textCompletion("gpt-4o", "ok", &Usage{TotalTokens: 1}), nil
			},
		},
	}
	eng := newTestEngine(up)

	res, err := eng.Chat(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("hi"),
		Retries:   2,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "ok", *res.Envelope.ChatOutput)
	assert.Equal(t, 3, up.completeCalls)
}

func TestChatRetryBudgetExhausted(t *testing.T) {
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) { return nil, rateLimited("fake") },
		},
	}
	eng := newTestEngine(up)

	_, err := eng.Chat(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("hi"),
		Retries:   1,
	})
	require.Error(t, err)
	ge := AsError(err)
	assert.Equal(t, ErrRateLimited, ge.Code)
	assert.Equal(t, "too many requests", ge.Message)
	assert.Equal(t, 429, ge.HTTPStatus)
	assert.Equal(t, 2, up.completeCalls)
}

func TestChatDoesNotRetryUpstreamFailures(t *testing.T) {
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) {
				return nil, &Error{Code: ErrUpstream, Message: "invalid api key", HTTPStatus: 401}
			},
		},
	}
	eng := newTestEngine(up)

	_, err := eng.Chat(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("hi"),
		Retries:   3,
	})
	require.Error(t, err)
	assert.Equal(t, ErrUpstream, AsError(err).Code)
	assert.Equal(t, 1, up.completeCalls)
}

func TestChatRejectsCompletionWithoutMessage(t *testing.T) {
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) { return &Completion{}, nil },
		},
	}
	eng := newTestEngine(up)

	_, err := eng.Chat(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("hi"),
	})
	require.Error(t, err)
	assert.Equal(t, ErrProtocol, AsError(err).Code)
}

func TestChatCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) {
				cancel()
				return nil, ctx.Err()
			},
		},
	}
	eng := newTestEngine(up)

	_, err := eng.Chat(ctx, &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("hi"),
	})
	require.Error(t, err)
	assert.Equal(t, ErrCancelled, AsError(err).Code)
	assert.Equal(t, 499, AsError(err).HTTPStatus)
}

func TestChatAsyncOneShot(t *testing.T) {
	up := &scriptedUpstream{
		completions: []func() (*Completion, error){
			func() (*Completion, error) {
				return textCompletion("gpt-4o", "done", &Usage{TotalTokens: 1}), nil
			},
		},
	}
	eng := newTestEngine(up)

	ch, err := eng.ChatAsync(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("hi"),
	})
	require.NoError(t, err)

	ev, ok := <-ch
	require.True(t, ok)
	require.Nil(t, ev.Err)
	require.NotNil(t, ev.Envelope)
	assert.Equal(t, "done", *ev.Envelope.ChatOutput)
	assert.NotNil(t, ev.Envelope.Metrics)

	_, ok = <-ch
	assert.False(t, ok)
}

func TestChatAsyncValidationIsSynchronous(t *testing.T) {
	eng := newTestEngine(&scriptedUpstream{})

	ch, err := eng.ChatAsync(context.Background(), &ChatRequest{
		Model:     "",
		ChatInput: TextInput("hi"),
	})
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.Equal(t, ErrValidation, AsError(err).Code)
}
