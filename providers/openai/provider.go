// Package openai adapts the OpenAI chat-completions API to the engine's
// upstream contract.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmgate/llmgate/llm"
	"github.com/llmgate/llmgate/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

var paramSpec = providers.ParamSpec{
	"temperature":       {Min: 0, Max: 2},
	"top_p":             {Min: 0, Max: 1},
	"max_tokens":        {Min: 1, Max: providers.Unbounded, Integer: true},
	"frequency_penalty": {Min: -2, Max: 2},
	"presence_penalty":  {Min: -2, Max: 2},
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

// Factory is the registry hook.
func Factory(cfg *llm.ProviderConfig, creds llm.Credentials, logger *zap.Logger) (llm.Upstream, error) {
	return New(cfg, creds, logger), nil
}

func (p *Provider) ID() string { return "openai" }

// The first OpenAI stream chunk carries only the assistant role marker.
func (p *Provider) LeadingRoleChunk() bool { return true }

func (p *Provider) ValidateParams(params llm.Parameters) error {
	return paramSpec.Validate(params, p.ID())
}

type wireMessage struct {
	Role    llm.Role    `json:"role"`
	Content llm.Content `json:"content"`
	Name    string      `json:"name,omitempty"`
}

type chatPayload struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Stream           bool          `json:"stream,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
}

func buildPayload(req *llm.ChatRequest, stream bool) chatPayload {
	msgs := req.ChatInput.Context()
	wire := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, wireMessage{Role: m.Role, Content: m.Content, Name: m.Name})
	}

	payload := chatPayload{
		Model:    req.Model,
		Messages: wire,
		Stream:   stream,
	}
	if v, ok := req.Parameters.Float("temperature"); ok {
		payload.Temperature = &v
	}
	if v, ok := req.Parameters.Float("top_p"); ok {
		payload.TopP = &v
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

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.creds.BaseURL, "/"))
}

func (p *Provider) do(ctx context.Context, payload chatPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.creds.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrMsg(resp.Body)
		p.logger.Warn("openai request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", payload.Model),
			zap.Duration("elapsed", time.Since(start)),
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

	var comp llm.Completion
	if err := json.NewDecoder(resp.Body).Decode(&comp); err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	return &comp, nil
}

func (p *Provider) Open(ctx context.Context, req *llm.ChatRequest) (llm.ChunkReader, error) {
	resp, err := p.do(ctx, buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	return providers.NewSSEReader(resp.Body, p.ID()), nil
}
