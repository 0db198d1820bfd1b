package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/llmgate/llmgate/llm"
)

// SSEReader consumes an OpenAI-style server-sent-event body and yields
// canonical chunks. Next returns io.EOF at the "[DONE]" sentinel or when the
// body ends. Close is safe to call concurrently with Next; a read unblocked
// by Close surfaces as io.EOF or a cancellation, never a spurious upstream
// error.
type SSEReader struct {
	provider string
	body     io.ReadCloser
	br       *bufio.Reader

	closeOnce sync.Once
	closed    chan struct{}
}

func NewSSEReader(body io.ReadCloser, provider string) *SSEReader {
	return &SSEReader{
		provider: provider,
		body:     body,
		br:       bufio.NewReader(body),
		closed:   make(chan struct{}),
	}
}

func (r *SSEReader) Next(ctx context.Context) (*llm.Chunk, error) {
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
			return nil, UpstreamErr(err, r.provider)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil, io.EOF
		}

		var chunk llm.Chunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, &llm.Error{
				Code:       llm.ErrProtocol,
				Message:    "malformed stream chunk: " + err.Error(),
				HTTPStatus: 500,
				Provider:   r.provider,
			}
		}
		return &chunk, nil
	}
}

func (r *SSEReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.body.Close()
	})
	return err
}
