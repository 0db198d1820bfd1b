// Package cohere adapts the Cohere chat API. The upstream wire shape is not
// OpenAI-compatible; this adapter translates both one-shot responses and the
// NDJSON event stream into the engine's canonical forms.
package cohere

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/llmgate/llmgate/llm"
	"github.com/llmgate/llmgate/providers"
)

const defaultBaseURL = "https://api.cohere.ai/v1"

var paramSpec = providers.ParamSpec{
	"temperature":       {Min: 0, Max: 5},
	"max_tokens":        {Min: 1, Max: providers.Unbounded, Integer: true},
	"p":                 {Min: 0, Max: 0.99},
	"k":                 {Min: 0, Max: 500, Integer: true},
	"frequency_penalty": {Min: 0, Max: providers.Unbounded},
	"presence_penalty":  {Min: 0, Max: 1},
}

type Provider struct {
	cfg    *llm.ProviderConfig
	creds  llm.Credentials
	client *http.Client
	logger *zap.Logger
}

func New(cfg *llm.ProviderConfig, creds llm.Credentials, logger *zap.Logger) *Provider {
	if creds.BaseURL == "" {
		creds.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		creds:  creds,
		client: &http.Client{},
		logger: logger,
	}
}

func Factory(cfg *llm.ProviderConfig, creds llm.Credentials, logger *zap.Logger) (llm.Upstream, error) {
	return New(cfg, creds, logger), nil
}

func (p *Provider) ID() string { return "cohere" }

// Cohere streams content from the very first event.
func (p *Provider) LeadingRoleChunk() bool { return false }

func (p *Provider) ValidateParams(params llm.Parameters) error {
	return paramSpec.Validate(params, p.ID())
}

type chatPayload struct {
	Model            string   `json:"model"`
	Message          string   `json:"message"`
	Stream           bool     `json:"stream,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	P                *float64 `json:"p,omitempty"`
	K                *int     `json:"k,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

func buildPayload(req *llm.ChatRequest, stream bool) chatPayload {
	payload := chatPayload{
		Model:   req.Model,
		Message: req.ChatInput.Flatten(),
		Stream:  stream,
	}
	if v, ok := req.Parameters.Float("temperature"); ok {
		payload.Temperature = &v
	}
	if v, ok := req.Parameters.Float("p"); ok {
		payload.P = &v
	}
	if v, ok := req.Parameters.Float("k"); ok {
		n := int(v)
		payload.K = &n
	}
	if v, ok := req.Parameters.Float("max_tokens"); ok {
		n := int(v)
		payload.MaxTokens = &n
	}
	if v, ok := req.Parameters.Float("frequency_penalty"); ok {
		payload.FrequencyPenalty = &v
	}
	if v, ok := req.Parameters.Float("presence_penalty"); ok {
		payload.PresencePenalty = &v
	}
	return payload
}

type chatResponse struct {
	Text         string `json:"text"`
	GenerationID string `json:"generation_id"`
	FinishReason string `json:"finish_reason"`
	Meta         struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

func mapFinish(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	default:
		return "stop"
	}
}

func (p *Provider) do(ctx context.Context, payload chatPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}

	endpoint := fmt.Sprintf("%s/chat", strings.TrimRight(p.creds.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.creds.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrMsg(resp.Body)
		p.logger.Warn("cohere request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", payload.Model),
		)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.ID())
	}
	return resp, nil
}

func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.Completion, error) {
	resp, err := p.do(ctx, buildPayload(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}

	content := cr.Text
	in := cr.Meta.BilledUnits.InputTokens
	out := cr.Meta.BilledUnits.OutputTokens
	return &llm.Completion{
		ID:     cr.GenerationID,
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []llm.Choice{{
			Index:        0,
			FinishReason: mapFinish(cr.FinishReason),
			Message: &llm.AssistantMessage{
				Role:    llm.RoleAssistant,
				Content: &content,
			},
		}},
		Usage: &llm.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}, nil
}

func (p *Provider) Open(ctx context.Context, req *llm.ChatRequest) (llm.ChunkReader, error) {
	resp, err := p.do(ctx, buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	return &eventReader{
		provider: p.ID(),
		model:    req.Model,
		body:     resp.Body,
		br:       bufio.NewReader(resp.Body),
		closed:   make(chan struct{}),
	}, nil
}

// streamEvent is one NDJSON frame of the Cohere event stream.
type streamEvent struct {
	EventType    string `json:"event_type"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// eventReader converts Cohere stream events into canonical chunks:
// text-generation events become content deltas, stream-end becomes the
// terminal finish marker.
type eventReader struct {
	provider string
	model    string
	body     io.ReadCloser
	br       *bufio.Reader

	closeOnce sync.Once
	closed    chan struct{}
}

func (r *eventReader) Next(ctx context.Context) (*llm.Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-r.closed:
			return nil, io.EOF
		default:
		}

		line, err := r.br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			select {
			case <-r.closed:
				return nil, io.EOF
			default:
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, providers.UpstreamErr(err, r.provider)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, &llm.Error{
				Code:       llm.ErrProtocol,
				Message:    "malformed stream event: " + err.Error(),
				HTTPStatus: 500,
				Provider:   r.provider,
			}
		}

		switch ev.EventType {
		case "text-generation":
			text := ev.Text
			return &llm.Chunk{
				Object: "chat.completion.chunk",
				Model:  r.model,
				Choices: []llm.Choice{{
					Index: 0,
					Delta: &llm.Delta{Role: llm.RoleAssistant, Content: &text},
				}},
			}, nil
		case "stream-end":
			return &llm.Chunk{
				Object: "chat.completion.chunk",
				Model:  r.model,
				Choices: []llm.Choice{{
					Index:        0,
					Delta:        &llm.Delta{},
					FinishReason: mapFinish(ev.FinishReason),
				}},
			}, nil
		default:
			// stream-start and tool events carry no content
			continue
		}
	}
}

func (r *eventReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.body.Close()
	})
	return err
}
