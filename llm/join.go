package llm

import "strings"

// joinChunks reconstructs the logical completion from accumulated stream
// chunks, dispatching on the terminal finish_reason. It returns the
// synthesized completion and the raw assembled string used for downstream
// tokenization. skipLeadingRole applies the adapter's first-chunk role-marker
// offset to text terminations.
func joinChunks(provider string, chunks []*Chunk, skipLeadingRole bool) (*Completion, string, error) {
	if len(chunks) == 0 {
		return nil, "", protocolErr(provider, "upstream stream produced no chunks")
	}
	last := chunks[len(chunks)-1]
	if len(last.Choices) == 0 {
		return nil, "", protocolErr(provider, "terminal chunk has no choices")
	}

	switch finish := last.Choices[0].FinishReason; finish {
	case "stop", "length":
		comp := joinText(chunks, skipLeadingRole)
		return comp, *comp.Choices[0].Message.Content, nil

	case "tool_calls":
		return joinToolCall(provider, chunks)

	case "function_call":
		return joinFunctionCall(provider, chunks)

	default:
		return nil, "", protocolErr(provider, "unknown finish_reason %q in stream", finish)
	}
}

// joinText concatenates delta content into a single assistant message.
// "length" terminations are folded into "stop".
func joinText(chunks []*Chunk, skipLeadingRole bool) *Completion {
	start := 0
	if skipLeadingRole && len(chunks) > 1 {
		start = 1
	}

	var b strings.Builder
	for _, c := range chunks[start:] {
		if len(c.Choices) == 0 || c.Choices[0].Delta == nil {
			continue
		}
		if content := c.Choices[0].Delta.Content; content != nil {
			b.WriteString(*content)
		}
	}
	content := b.String()

	return synthesized(chunks, "stop", &AssistantMessage{
		Role:    RoleAssistant,
		Content: &content,
	})
}

// joinToolCall reassembles a tool call: the first carrying chunk holds the
// id, name and type, the rest hold argument fragments in order.
func joinToolCall(provider string, chunks []*Chunk) (*Completion, string, error) {
	calls := collectToolDeltas(chunks)
	if len(calls) == 0 {
		return nil, "", protocolErr(provider, "tool_calls termination without tool call deltas")
	}

	head := calls[0]
	typ := head.Type
	if typ == "" {
		typ = "function"
	}

	var b strings.Builder
	for _, tc := range calls[1:] {
		b.WriteString(tc.Function.Arguments)
	}
	args := b.String()

	comp := synthesized(chunks, "tool_calls", &AssistantMessage{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			ID:   head.ID,
			Type: typ,
			Function: FunctionCall{
				Name:      head.Function.Name,
				Arguments: args,
			},
		}},
	})
	return comp, args, nil
}

func collectToolDeltas(chunks []*Chunk) []ToolCall {
	if len(chunks) < 3 {
		return nil
	}
	var calls []ToolCall
	for _, c := range chunks[1 : len(chunks)-1] {
		if len(c.Choices) == 0 || c.Choices[0].Delta == nil {
			continue
		}
		if tcs := c.Choices[0].Delta.ToolCalls; len(tcs) > 0 {
			calls = append(calls, tcs[0])
		}
	}
	return calls
}

// joinFunctionCall reassembles a legacy function call: name from the first
// carrying chunk, arguments concatenated across every carrying chunk.
func joinFunctionCall(provider string, chunks []*Chunk) (*Completion, string, error) {
	var fragments []*FunctionCall
	if len(chunks) >= 3 {
		for _, c := range chunks[1 : len(chunks)-1] {
			if len(c.Choices) == 0 || c.Choices[0].Delta == nil {
				continue
			}
			if fc := c.Choices[0].Delta.FunctionCall; fc != nil {
				fragments = append(fragments, fc)
			}
		}
	}
	if len(fragments) == 0 {
		return nil, "", protocolErr(provider, "function_call termination without function call deltas")
	}

	var b strings.Builder
	for _, fc := range fragments {
		b.WriteString(fc.Arguments)
	}
	args := b.String()

	comp := synthesized(chunks, "function_call", &AssistantMessage{
		Role: RoleAssistant,
		FunctionCall: &FunctionCall{
			Name:      fragments[0].Name,
			Arguments: args,
		},
	})
	return comp, args, nil
}

func synthesized(chunks []*Chunk, finish string, msg *AssistantMessage) *Completion {
	last := chunks[len(chunks)-1]
	return &Completion{
		ID:      last.ID,
		Object:  "chat.completion",
		Created: last.Created,
		Model:   last.Model,
		Choices: []Choice{{
			Index:        0,
			FinishReason: finish,
			Message:      msg,
		}},
	}
}
