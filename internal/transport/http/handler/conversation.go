package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"aichat/internal/app"
	"aichat/internal/transport/http/middleware"
	"aichat/internal/transport/http/response"
)

type ConversationHandler struct {
	conversations *app.ConversationService
}

type CreateConversationRequest struct {
	Title        string `json:"title" binding:"max=200"`
	SystemPrompt string `json:"systemPrompt" binding:"max=4000"`
	Model        string `json:"model" binding:"max=64"`
}

type UpdateConversationRequest struct {
	Title        *string `json:"title"`
	SystemPrompt *string `json:"systemPrompt"`
	Model        *string `json:"model"`
}

func NewConversationHandler(conversations *app.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	conversation, err := h.conversations.Create(userID, app.CreateConversationInput{
		Title:        req.Title,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
	})
	if err != nil {
		writeConversationError(c, err, "create conversation failed")
		return
	}
	response.OK(c, conversation)
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	page, err := h.conversations.List(userID, intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		writeConversationError(c, err, "list conversations failed")
		return
	}
	response.OK(c, page)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	conversation, err := h.conversations.Get(userID, c.Param("id"))
	if err != nil {
		writeConversationError(c, err, "get conversation failed")
		return
	}
	response.OK(c, conversation)
}

func (h *ConversationHandler) Update(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	conversation, err := h.conversations.Update(userID, c.Param("id"), app.UpdateConversationInput{
		Title:        req.Title,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
	})
	if err != nil {
		writeConversationError(c, err, "update conversation failed")
		return
	}
	response.OK(c, conversation)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	conversationID := c.Param("id")
	if err := h.conversations.Delete(c.Request.Context(), userID, conversationID); err != nil {
		writeConversationError(c, err, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"deletedConversationId": conversationID})
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	page, err := h.conversations.History(
		c.Request.Context(),
		userID,
		c.Param("id"),
		c.Query("before"),
		intQuery(c, "limit", 50),
	)
	if err != nil {
		writeConversationError(c, err, "get messages failed")
		return
	}
	response.OK(c, page)
}

func writeConversationError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
