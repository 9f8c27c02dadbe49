package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aichat/internal/app"
	"aichat/internal/model"
	"aichat/internal/stream"
	"aichat/internal/transport/http/middleware"
	"aichat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendMessageRequest struct {
	Content     string                 `json:"content" binding:"max=32768"`
	Attachments []AttachmentRefRequest `json:"attachments" binding:"max=10,dive"`
}

type AttachmentRefRequest struct {
	ID   string `json:"id" binding:"required"`
	Type string `json:"type" binding:"required,oneof=image file"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// sseEmitter writes protocol events to the response as server-sent events.
// The stream headers go out on the first event, so a turn rejected before
// any event can still answer with a plain JSON status.
type sseEmitter struct {
	c       *gin.Context
	enc     *stream.Encoder
	started bool
}

func (e *sseEmitter) Emit(ev stream.Event) error {
	if !e.started {
		e.c.Header("Content-Type", "text/event-stream")
		e.c.Header("Cache-Control", "no-cache")
		e.c.Header("Connection", "keep-alive")
		e.c.Header("X-Accel-Buffering", "no")
		e.c.Writer.WriteHeader(http.StatusOK)
		e.enc = stream.NewEncoder(e.c.Writer)
		e.started = true
	}
	return e.enc.Encode(ev)
}

func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if _, ok := c.Writer.(http.Flusher); !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	emitter := &sseEmitter{c: c}
	err := h.chatService.StreamTurn(c.Request.Context(), turnInput(userID, c.Param("id"), req), emitter)
	if err == nil {
		return
	}
	if emitter.started {
		// Too late for a status line; the stream already carried the outcome.
		return
	}
	writeTurnError(c, err)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendTurn(c.Request.Context(), turnInput(userID, c.Param("id"), req))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	response.OK(c, result)
}

func turnInput(userID, conversationID string, req SendMessageRequest) app.TurnInput {
	refs := make([]model.AttachmentRef, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		refs = append(refs, model.AttachmentRef{ID: att.ID, Type: att.Type})
	}
	return app.TurnInput{
		UserID:         userID,
		ConversationID: conversationID,
		Content:        req.Content,
		Attachments:    refs,
	}
}

func writeTurnError(c *gin.Context, err error) {
	var pe *app.ProviderError
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrEmptyTurn):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	case errors.Is(err, app.ErrAttachmentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeAttachmentNotFound, err.Error())
	case errors.As(err, &pe):
		response.Error(c, http.StatusBadGateway, response.CodeProviderFailure, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "send message failed")
	}
}
