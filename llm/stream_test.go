package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, up *scriptedUpstream, req *ChatRequest) *Stream {
	t.Helper()
	eng := newTestEngine(up)
	res, err := eng.Chat(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.IsStream())
	return res.Stream
}

func streamRequest() *ChatRequest {
	return &ChatRequest{
		Model:     "gpt-4o",
		ChatInput: TextInput("Hello"),
		IsStream:  true,
	}
}

func TestStreamDeliversChunksThenTerminator(t *testing.T) {
	rd := &sliceReader{chunks: []*Chunk{
		textChunk("gpt-4o", "H"),
		textChunk("gpt-4o", "e"),
		textChunk("gpt-4o", "y"),
		textChunk("gpt-4o", "."),
		finishChunk("gpt-4o", "stop"),
	}}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	stream := openStream(t, up, streamRequest())
	ctx := context.Background()

	want := []string{"H", "e", "y", "."}
	for _, fragment := range want {
		env, err := stream.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, env.ChatOutput)
		assert.Equal(t, fragment, *env.ChatOutput)
		assert.Nil(t, env.Metrics)
		assert.Equal(t, "fake", env.Provider)
		assert.Equal(t, "chat.completion.chunk", env.Object)
	}

	// The stop marker is consumed by the joiner; the next envelope is the
	// terminator carrying metrics and a null chat_output.
	term, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, term.ChatOutput)
	require.NotNil(t, term.Metrics)

	m := term.Metrics
	assert.Equal(t, len("Hello"), m.InputTokens)
	assert.Equal(t, len("Hey."), m.OutputTokens)
	assert.Equal(t, m.InputTokens+m.OutputTokens, m.TotalTokens)
	assert.InDelta(t, 0.001*5+0.002*4, m.CostUSD, 1e-12)
	require.NotNil(t, m.TimeToFirstTokenS)
	assert.GreaterOrEqual(t, *m.TimeToFirstTokenS, 0.0)
	assert.LessOrEqual(t, *m.TimeToFirstTokenS, m.LatencyS)
	require.NotNil(t, m.InterTokenLatencyS)
	assert.GreaterOrEqual(t, *m.InterTokenLatencyS, 0.0)
	assert.GreaterOrEqual(t, m.TokensPerSecond, 0.0)

	_, err = stream.Next(ctx)
	assert.Equal(t, ErrStreamDone, err)
	assert.True(t, rd.closed)
}

func TestStreamSkipsLeadingRoleChunkInJoin(t *testing.T) {
	rd := &sliceReader{chunks: []*Chunk{
		roleChunk("gpt-4o"),
		textChunk("gpt-4o", "Hi"),
		finishChunk("gpt-4o", "stop"),
	}}
	up := &scriptedUpstream{
		leadingRole: true,
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	stream := openStream(t, up, streamRequest())
	ctx := context.Background()

	// The role marker is still surfaced as a chunk envelope.
	env, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, env.ChatOutput)

	env, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hi", *env.ChatOutput)

	term, err := stream.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, term.Metrics)
	assert.Equal(t, len("Hi"), term.Metrics.OutputTokens)
}

func TestStreamResolvesReportedModel(t *testing.T) {
	rd := &sliceReader{chunks: []*Chunk{
		textChunk("gpt-4o-2024-08", "Hi"),
		finishChunk("gpt-4o-2024-08", "stop"),
	}}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	stream := openStream(t, up, streamRequest())
	ctx := context.Background()

	env, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-2024-08", env.Model)
	assert.Equal(t, "gpt-4o-2024-08", env.Deployment)

	term, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-2024-08", term.Model)
	assert.Equal(t, "gpt-4o-2024-08", term.Deployment)
}

func TestStreamMidCallErrorOmitsMetrics(t *testing.T) {
	rd := &sliceReader{
		chunks: []*Chunk{textChunk("gpt-4o", "par")},
		err:    &Error{Code: ErrUpstream, Message: "connection reset", HTTPStatus: 502},
	}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	stream := openStream(t, up, streamRequest())
	ctx := context.Background()

	env, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "par", *env.ChatOutput)

	_, err = stream.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, ErrUpstream, AsError(err).Code)
	assert.True(t, rd.closed)

	_, err = stream.Next(ctx)
	assert.Equal(t, ErrStreamDone, err)
}

func TestStreamCancellation(t *testing.T) {
	rd := &sliceReader{chunks: []*Chunk{textChunk("gpt-4o", "a")}}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	stream := openStream(t, up, streamRequest())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stream.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, ErrCancelled, AsError(err).Code)
	assert.True(t, rd.closed)
}

func TestStreamOpenRetriesOnRateLimit(t *testing.T) {
	rd := &sliceReader{chunks: []*Chunk{
		textChunk("gpt-4o", "ok"),
		finishChunk("gpt-4o", "stop"),
	}}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return nil, rateLimited("fake") },
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	req := streamRequest()
	req.Retries = 1
	stream := openStream(t, up, req)

	env, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", *env.ChatOutput)
	assert.Equal(t, 2, up.openCalls)
}

func TestStreamEmptyUpstream(t *testing.T) {
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return &sliceReader{}, nil },
		},
	}
	stream := openStream(t, up, streamRequest())

	_, err := stream.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrProtocol, AsError(err).Code)
}

func TestChatAsyncStreamOrderAndTermination(t *testing.T) {
	rd := &sliceReader{chunks: []*Chunk{
		textChunk("gpt-4o", "H"),
		textChunk("gpt-4o", "i"),
		finishChunk("gpt-4o", "stop"),
	}}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	eng := newTestEngine(up)

	ch, err := eng.ChatAsync(context.Background(), streamRequest())
	require.NoError(t, err)

	var envs []*Envelope
	for ev := range ch {
		require.Nil(t, ev.Err)
		envs = append(envs, ev.Envelope)
	}
	require.Len(t, envs, 3)
	assert.Equal(t, "H", *envs[0].ChatOutput)
	assert.Equal(t, "i", *envs[1].ChatOutput)

	// Exactly one envelope carries metrics, and it is the last.
	assert.Nil(t, envs[0].Metrics)
	assert.Nil(t, envs[1].Metrics)
	assert.Nil(t, envs[2].ChatOutput)
	assert.NotNil(t, envs[2].Metrics)
}

func TestChatAsyncStreamSurfacesMidCallError(t *testing.T) {
	rd := &sliceReader{
		chunks: []*Chunk{textChunk("gpt-4o", "a")},
		err:    &Error{Code: ErrUpstream, Message: "boom", HTTPStatus: 502},
	}
	up := &scriptedUpstream{
		opens: []func() (ChunkReader, error){
			func() (ChunkReader, error) { return rd, nil },
		},
	}
	eng := newTestEngine(up)

	ch, err := eng.ChatAsync(context.Background(), streamRequest())
	require.NoError(t, err)

	first, ok := <-ch
	require.True(t, ok)
	require.NotNil(t, first.Envelope)

	last, ok := <-ch
	require.True(t, ok)
	require.NotNil(t, last.Err)
	assert.Equal(t, ErrUpstream, last.Err.Code)

	_, ok = <-ch
	assert.False(t, ok)
}
