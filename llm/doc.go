// Package llm implements the provider dispatch and streaming normalization
// engine: request validation, bounded retry on upstream rate limits, one-shot
// and streaming upstream invocation, chunk re-assembly, per-call metrics, and
// the canonical response envelope emitted in place of raw upstream payloads.
//
// Provider adapters live under the providers/ tree and plug in through the
// Upstream interface; the engine itself is provider-agnostic.
package llm
