package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aichat/internal/model"
	"aichat/internal/stream"
)

func sseHandler(t *testing.T, events []stream.Event) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/conversations/conv-1/messages/stream", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		enc := stream.NewEncoder(w)
		for _, ev := range events {
			require.NoError(t, enc.Encode(ev))
		}
	}
}

func TestClientStreamTurn(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []stream.Event{
		stream.MessageStart{MessageID: "m-1"},
		stream.ContentDelta{Delta: "4"},
		stream.MessageEnd{MessageID: "m-1", Tokens: model.TokenUsage{Input: 5, Output: 1}},
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	r := NewReducer()

	err := c.StreamTurn(context.Background(), "conv-1", TurnRequest{Content: "2+2?"}, r)
	require.NoError(t, err)

	assert.Equal(t, PhaseIdle, r.Phase())
	transcript := r.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "2+2?", transcript[0].Content)
	assert.Equal(t, "4", transcript[1].Content)
}

func TestClientStreamTurnRemoteError(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []stream.Event{
		stream.MessageStart{MessageID: "m-1"},
		stream.ContentDelta{Delta: "Hello, "},
		stream.ContentDelta{Delta: "world"},
		stream.ErrorEvent{Message: "provider connection reset"},
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	r := NewReducer()

	err := c.StreamTurn(context.Background(), "conv-1", TurnRequest{Content: "hi"}, r)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "provider connection reset", remote.Message)
	assert.Equal(t, PhaseIdle, r.Phase())
}

func TestClientStreamTurnRejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":40401,"message":"conversation not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	r := NewReducer()

	err := c.StreamTurn(context.Background(), "conv-1", TurnRequest{Content: "hi"}, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversation not found")
	assert.Equal(t, PhaseIdle, r.Phase())
}

func TestClientStreamTurnCancellation(t *testing.T) {
	firstDelta := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		enc := stream.NewEncoder(w)
		require.NoError(t, enc.Encode(stream.MessageStart{MessageID: "m-1"}))
		require.NoError(t, enc.Encode(stream.ContentDelta{Delta: "Once upon"}))
		close(firstDelta)
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(srv.URL, "test-token")
	r := NewReducer()

	done := make(chan error, 1)
	go func() {
		done <- c.StreamTurn(ctx, "conv-1", TurnRequest{Content: "tell me a story"}, r)
	}()

	<-firstDelta
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after cancellation")
	}
	assert.Equal(t, PhaseIdle, r.Phase())
}

func TestClientStreamTurnTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []stream.Event{
		stream.MessageStart{MessageID: "m-1"},
		stream.ContentDelta{Delta: "partial"},
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	r := NewReducer()

	err := c.StreamTurn(context.Background(), "conv-1", TurnRequest{Content: "hi"}, r)
	require.Error(t, err)
	assert.Equal(t, PhaseIdle, r.Phase())
}
