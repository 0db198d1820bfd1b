package llm

// Upstream completion and chunk shapes, normalized to the OpenAI wire form.
// Non-OpenAI adapters translate their native payloads into these before the
// engine sees them.

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type ToolCall struct {
	Index    int          `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// AssistantMessage is the message of a completed choice. Content is a pointer
// so tool-call completions marshal it as null.
type AssistantMessage struct {
	Role         Role          `json:"role"`
	Content      *string       `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// Delta is the incremental payload of a streamed chunk.
type Delta struct {
	Role         Role          `json:"role,omitempty"`
	Content      *string       `json:"content,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// Choice holds either a full message (one-shot) or a delta (stream).
type Choice struct {
	Index        int               `json:"index"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Message      *AssistantMessage `json:"message,omitempty"`
	Delta        *Delta            `json:"delta,omitempty"`
}

// Completion is a one-shot upstream result, or the logical completion
// synthesized by the chunk joiner.
type Completion struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Chunk is a single streamed fragment from an upstream provider.
type Chunk struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}

// Metrics is attached to exactly one envelope per successful call, always the
// last emitted. The stream-only fields are nil on one-shot calls.
type Metrics struct {
	InputTokens        int      `json:"input_tokens"`
	OutputTokens       int      `json:"output_tokens"`
	TotalTokens        int      `json:"total_tokens"`
	CostUSD            float64  `json:"cost_usd"`
	LatencyS           float64  `json:"latency_s"`
	TimeToFirstTokenS  *float64 `json:"time_to_first_token_s,omitempty"`
	InterTokenLatencyS *float64 `json:"inter_token_latency_s,omitempty"`
	TokensPerSecond    float64  `json:"tokens_per_second"`
}

// Envelope is the canonical object emitted in place of the raw upstream
// completion: a superset of the OpenAI chat.completion / chat.completion.chunk
// shape with gateway fields merged at the top level.
type Envelope struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
	Usage   *Usage   `json:"usage,omitempty"`

	ChatInput  Content    `json:"chat_input"`
	ChatOutput *string    `json:"chat_output"`
	Context    []Message  `json:"context"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Deployment string     `json:"deployment,omitempty"`
	Timestamp  float64    `json:"timestamp"`
	Parameters Parameters `json:"parameters,omitempty"`
	Metrics    *Metrics   `json:"metrics,omitempty"`
}
