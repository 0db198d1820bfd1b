package providers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/llmgate/llmgate/llm"
)

// MapHTTPError translates an upstream HTTP failure into a gateway error.
// Only 429 is retry eligible; everything else is fatal to the call.
func MapHTTPError(status int, msg, provider string) *llm.Error {
	code := llm.ErrUpstream
	retryable := false
	if status == http.StatusTooManyRequests {
		code = llm.ErrRateLimited
		retryable = true
	}
	return &llm.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

// UpstreamErr wraps a transport-level failure (dial, timeout, decode).
func UpstreamErr(err error, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstream,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Provider:   provider,
	}
}

type wireErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

// ReadErrMsg extracts a human-readable message from an upstream error body,
// falling back to the raw payload.
func ReadErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var resp wireErrorResp
	if err := json.Unmarshal(data, &resp); err == nil {
		if resp.Error.Message != "" {
			return resp.Error.Message
		}
		if resp.Message != "" {
			return resp.Message
		}
	}
	return string(data)
}
