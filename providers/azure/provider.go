// Package azure adapts Azure OpenAI deployments. The wire shape matches
// OpenAI; auth uses the api-key header and the endpoint is the deployment URL
// with an api-version query.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/llmgate/llmgate/llm"
	"github.com/llmgate/llmgate/providers"
)

const defaultAPIVersion = "2024-06-01"

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
	if creds.APIVersion == "" {
		creds.APIVersion = defaultAPIVersion
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

func (p *Provider) ID() string { return "azure" }

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

	payload := chatPayload{Messages: wire, Stream: stream}
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

// endpoint targets the deployment named after the requested model:
// {api_endpoint}/openai/deployments/{model}/chat/completions?api-version=...
func (p *Provider) endpoint(model string) string {
	base := strings.TrimRight(p.creds.APIEndpoint, "/")
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(model), url.QueryEscape(p.creds.APIVersion))
}

func (p *Provider) do(ctx context.Context, model string, payload chatPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	httpReq.Header.Set("api-key", p.creds.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.UpstreamErr(err, p.ID())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrMsg(resp.Body)
		p.logger.Warn("azure request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("deployment", model),
		)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.ID())
	}
	return resp, nil
}

func (p *Provider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.Completion, error) {
	resp, err := p.do(ctx, req.Model, buildPayload(req, false))
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
	resp, err := p.do(ctx, req.Model, buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	return providers.NewSSEReader(resp.Body, p.ID()), nil
}
