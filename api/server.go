// Package api re-exposes the engine over HTTP. One endpoint per provider:
// POST /api/engine/chat/{provider}. Non-stream calls answer with a single
// canonical envelope; streams answer with chunked transfer, one envelope
// frame per line, terminator last.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/llmgate/llmgate/config"
	"github.com/llmgate/llmgate/llm"
	"github.com/llmgate/llmgate/tracking"
)

// chatBody is the proxy wire request. Credentials ride along per call so one
// gateway can front many tenants.
type chatBody struct {
	Model       string         `json:"model"`
	SessionID   string         `json:"session_id,omitempty"`
	APIKey      string         `json:"api_key,omitempty"`
	APIEndpoint string         `json:"api_endpoint,omitempty"`
	APIVersion  string         `json:"api_version,omitempty"`
	BaseURL     string         `json:"base_url,omitempty"`
	ChatInput   llm.ChatInput  `json:"chat_input"`
	IsStream    bool           `json:"is_stream,omitempty"`
	Retries     int            `json:"retries,omitempty"`
	Parameters  llm.Parameters `json:"parameters,omitempty"`
}

type Server struct {
	cfg      *config.Config
	registry *llm.Registry
	tracker  *tracking.Store
	logger   *zap.Logger
	limiter  *rate.Limiter
	opts     []llm.Option
}

// NewServer builds the proxy. tracker may be nil; engineOpts are forwarded to
// every per-call engine (tests use them to inject tokenizers and retry
// pacing).
func NewServer(cfg *config.Config, registry *llm.Registry, tracker *tracking.Store, logger *zap.Logger, engineOpts ...llm.Option) *Server {
	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = int(cfg.Server.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		tracker:  tracker,
		logger:   logger,
		limiter:  limiter,
		opts:     engineOpts,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/engine/chat/{provider}", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","providers":%d}`, s.registry.Len())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	start := time.Now()

	if s.limiter != nil && !s.limiter.Allow() {
		s.writeError(w, provider, "", false, start, &llm.Error{
			Code:       llm.ErrRateLimited,
			Message:    "gateway is saturated",
			HTTPStatus: http.StatusTooManyRequests,
		})
		return
	}

	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, provider, "", false, start, &llm.Error{
			Code:       llm.ErrValidation,
			Message:    "malformed request body: " + err.Error(),
			HTTPStatus: http.StatusUnprocessableEntity,
		})
		return
	}

	catalog := s.cfg.Catalog(provider)
	if catalog == nil {
		s.writeError(w, provider, body.Model, body.IsStream, start, &llm.Error{
			Code:       llm.ErrUnknownProvider,
			Message:    fmt.Sprintf("provider %s is not configured", provider),
			HTTPStatus: http.StatusBadRequest,
		})
		return
	}

	creds := llm.Credentials{
		APIKey:      body.APIKey,
		APIEndpoint: body.APIEndpoint,
		APIVersion:  body.APIVersion,
		BaseURL:     body.BaseURL,
	}
	opts := append([]llm.Option{llm.WithLogger(s.logger)}, s.opts...)
	engine, err := s.registry.Connect(provider, catalog, creds, opts...)
	if err != nil {
		s.writeError(w, provider, body.Model, body.IsStream, start, err)
		return
	}

	req := &llm.ChatRequest{
		Model:      body.Model,
		ChatInput:  body.ChatInput,
		IsStream:   body.IsStream,
		Retries:    body.Retries,
		Parameters: body.Parameters,
	}

	result, err := engine.Chat(r.Context(), req)
	if err != nil {
		s.writeError(w, provider, body.Model, body.IsStream, start, err)
		return
	}

	if result.IsStream() {
		s.streamResponse(w, r, provider, &body, result.Stream, start)
		return
	}

	env := result.Envelope
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
	s.finishCall(r, provider, &body, env, http.StatusOK, false, start)
}

// streamResponse writes one envelope frame per line over chunked transfer.
// The client disconnecting cancels the request context, which tears the
// upstream down; no metrics frame is synthesized in that case.
func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, provider string, body *chatBody, stream *llm.Stream, start time.Time) {
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for {
		env, err := stream.Next(r.Context())
		if err != nil {
			if err == llm.ErrStreamDone {
				return
			}
			// Headers are gone; the best we can do is log, drop the
			// connection, and count the failure.
			ge := llm.AsError(err)
			s.logger.Warn("stream terminated",
				zap.String("provider", provider),
				zap.String("code", string(ge.Code)),
				zap.Error(err),
			)
			observeCall(provider, body.Model, strconv.Itoa(ge.HTTPStatus), true, time.Since(start).Seconds())
			return
		}

		if encErr := enc.Encode(env); encErr != nil {
			s.logger.Debug("client went away", zap.Error(encErr))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}

		if env.Metrics != nil {
			s.finishCall(r, provider, body, env, http.StatusOK, true, start)
		}
	}
}

func (s *Server) finishCall(r *http.Request, provider string, body *chatBody, env *llm.Envelope, status int, stream bool, start time.Time) {
	observeCall(provider, env.Model, strconv.Itoa(status), stream, time.Since(start).Seconds())
	if env.Metrics != nil {
		observeUsage(provider, env.Model, env.Metrics.InputTokens, env.Metrics.OutputTokens, env.Metrics.CostUSD)
	}

	if s.tracker != nil && env.Metrics != nil {
		if err := s.tracker.Record(r.Context(), body.SessionID, env); err != nil {
			s.logger.Warn("tracking record failed", zap.Error(err))
		}
	}
}

// writeError maps the gateway error taxonomy onto the proxy status contract:
// validation 422, unknown provider / unsupported model 400, exhausted rate
// limit 429, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, provider, model string, stream bool, start time.Time, err error) {
	ge := llm.AsError(err)
	var status int
	switch ge.Code {
	case llm.ErrValidation:
		status = http.StatusUnprocessableEntity
	case llm.ErrUnknownProvider, llm.ErrUnsupportedModel:
		status = http.StatusBadRequest
	case llm.ErrRateLimited:
		status = http.StatusTooManyRequests
	case llm.ErrCancelled:
		status = 499
	default:
		status = http.StatusInternalServerError
	}

	observeCall(provider, model, strconv.Itoa(status), stream, time.Since(start).Seconds())
	s.logger.Info("chat request rejected",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("code", string(ge.Code)),
		zap.Int("status", status),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": ge})
}
