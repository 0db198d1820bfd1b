// Package providers holds the pieces shared by the per-provider adapters:
// parameter schemas, upstream error mapping, and SSE stream consumption.
// Each adapter lives in its own subpackage and implements llm.Upstream.
package providers
