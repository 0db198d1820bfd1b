package llm

import "time"

// usageMetrics computes one-shot metrics from the upstream-reported usage.
func (e *Engine) usageMetrics(usage *Usage, model string, start, end time.Time) *Metrics {
	if usage == nil {
		usage = &Usage{}
	}
	mc, _ := e.cfg.Model(model) // validated before dispatch

	latency := end.Sub(start).Seconds()
	in := usage.PromptTokens
	out := usage.CompletionTokens

	tps := 0.0
	if latency > 0 {
		tps = float64(usage.TotalTokens) / latency
	}

	return &Metrics{
		InputTokens:     in,
		OutputTokens:    out,
		TotalTokens:     in + out,
		CostUSD:         mc.InputTokenCost.For(in) + mc.OutputTokenCost.For(out),
		LatencyS:        latency,
		TokensPerSecond: tps,
	}
}

// streamMetrics computes terminator metrics for a stream. Token counts come
// from tokenizing the canonical string forms because upstream streams do not
// report usage; rawOutput is the joiner's assembled string.
func (e *Engine) streamMetrics(req *ChatRequest, rawOutput string, timing *streamTiming) *Metrics {
	mc, _ := e.cfg.Model(req.Model)

	in := e.tok.Count(req.ChatInput.Flatten())
	out := e.tok.Count(rawOutput)

	latency := timing.end.Sub(timing.start).Seconds()
	ttft := timing.firstToken.Sub(timing.start).Seconds()

	var itl *float64
	if len(timing.gaps) > 0 {
		sum := 0.0
		for _, g := range timing.gaps {
			sum += g
		}
		mean := sum / float64(len(timing.gaps))
		itl = &mean
	}

	tps := 0.0
	if latency > 0 {
		tps = float64(timing.count) / latency
	}

	return &Metrics{
		InputTokens:        in,
		OutputTokens:       out,
		TotalTokens:        in + out,
		CostUSD:            mc.InputTokenCost.For(in) + mc.OutputTokenCost.For(out),
		LatencyS:           latency,
		TimeToFirstTokenS:  &ttft,
		InterTokenLatencyS: itl,
		TokensPerSecond:    tps,
	}
}

// streamTiming is the per-call arrival bookkeeping behind stream metrics.
type streamTiming struct {
	start      time.Time
	end        time.Time
	firstToken time.Time
	prevToken  time.Time
	gaps       []float64
	count      int
}

func (t *streamTiming) observe(now time.Time) {
	t.count++
	if t.firstToken.IsZero() {
		t.firstToken = now
	}
	if !t.prevToken.IsZero() {
		t.gaps = append(t.gaps, now.Sub(t.prevToken).Seconds())
	}
	t.prevToken = now
}
