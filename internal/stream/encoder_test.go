package stream

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aichat/internal/model"
)

func TestEncoderFraming(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(MessageStart{MessageID: "m-1"}))
	require.NoError(t, enc.Encode(ContentDelta{Delta: "4"}))
	require.NoError(t, enc.Encode(MessageEnd{
		MessageID: "m-1",
		Tokens:    model.TokenUsage{Input: 5, Output: 1},
	}))

	want := "event: message_start\ndata: {\"messageId\":\"m-1\"}\n\n" +
		"event: content_delta\ndata: {\"delta\":\"4\"}\n\n" +
		"event: message_end\ndata: {\"messageId\":\"m-1\",\"tokens\":{\"input\":5,\"output\":1}}\n\n"
	assert.Equal(t, want, buf.String())
}

func TestEncoderErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(ErrorEvent{Message: "provider unavailable"}))
	assert.Equal(t, "event: error\ndata: {\"error\":\"provider unavailable\"}\n\n", buf.String())
}

func TestEncoderEscapesNewlinesInPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(ContentDelta{Delta: "line one\nline two"}))

	// JSON encoding keeps multi-line content inside a single data line.
	assert.Equal(t, "event: content_delta\ndata: {\"delta\":\"line one\\nline two\"}\n\n", buf.String())
}

func TestEncoderFlushesPerEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	require.NoError(t, enc.Encode(ContentDelta{Delta: "x"}))
	assert.True(t, rec.Flushed)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(MessageEnd{
		MessageID:         "m-9",
		Tokens:            model.TokenUsage{Input: 12, Output: 34},
		ConversationTitle: "Weather in Paris",
	}))

	dec := NewDecoder()
	events, err := dec.Feed(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 1)

	end, ok := events[0].(MessageEnd)
	require.True(t, ok)
	assert.Equal(t, "m-9", end.MessageID)
	assert.Equal(t, 12, end.Tokens.Input)
	assert.Equal(t, 34, end.Tokens.Output)
	assert.Equal(t, "Weather in Paris", end.ConversationTitle)
}
