package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"aichat/internal/model"
	"aichat/internal/stream"
)

// Client drives the streaming endpoint. It reads the response body in raw
// chunks and feeds them to the event decoder, so a chunk boundary inside an
// event frame is handled by the decoder's rolling buffer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type TurnRequest struct {
	Content     string                `json:"content"`
	Attachments []model.AttachmentRef `json:"attachments,omitempty"`
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{},
	}
}

// StreamTurn submits a turn and applies every decoded event to r until the
// stream ends. Cancelling ctx aborts the read; the reducer is returned to
// idle and ctx.Err() is reported.
func (c *Client) StreamTurn(ctx context.Context, conversationID string, req TurnRequest, r *Reducer) error {
	if err := r.BeginTurn(req.Content); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		r.Cancel()
		return fmt.Errorf("encode turn request failed: %w", err)
	}

	url := c.baseURL + "/api/v1/conversations/" + conversationID + "/messages/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		r.Cancel()
		return fmt.Errorf("build stream request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		r.Cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.Cancel()
		return fmt.Errorf("stream request rejected: %s", readAPIError(resp.Body, resp.StatusCode))
	}

	dec := stream.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			events, decodeErr := dec.Feed(buf[:n])
			for _, ev := range events {
				if applyErr := r.Apply(ev); applyErr != nil {
					return applyErr
				}
			}
			if decodeErr != nil {
				r.Cancel()
				return decodeErr
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if r.Phase() == PhaseStreaming {
					// The server went away without a terminal event.
					r.Cancel()
					return io.ErrUnexpectedEOF
				}
				return nil
			}
			r.Cancel()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream failed: %w", readErr)
		}
	}
}

func readAPIError(body io.Reader, status int) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err == nil && payload.Message != "" {
		return fmt.Sprintf("%s (status %d)", payload.Message, status)
	}
	return fmt.Sprintf("status %d", status)
}
