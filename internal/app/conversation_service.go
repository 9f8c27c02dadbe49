package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"aichat/internal/model"
	"aichat/internal/repository"
)

const (
	defaultConversationTitle = "New Conversation"
	defaultSystemPrompt      = "You are a helpful AI assistant."
	historyPageLimit         = 50
)

type ConversationService struct {
	convRepo     *repository.ConversationRepository
	msgRepo      *repository.MessageRepository
	historyCache HistoryCache
	defaultModel string
	logger       *slog.Logger
}

type CreateConversationInput struct {
	Title        string
	SystemPrompt string
	Model        string
}

type UpdateConversationInput struct {
	Title        *string
	SystemPrompt *string
	Model        *string
}

type ConversationPage struct {
	Conversations []model.Conversation `json:"conversations"`
	Total         int64                `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

type HistoryPage struct {
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

func NewConversationService(
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	historyCache HistoryCache,
	defaultModel string,
) *ConversationService {
	return &ConversationService{
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		historyCache: historyCache,
		defaultModel: defaultModel,
		logger:       slog.Default(),
	}
}

func (s *ConversationService) Create(userID string, input CreateConversationInput) (*model.Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	title := sanitizeTitle(input.Title)
	if title == "" {
		title = defaultConversationTitle
	}
	prompt := strings.TrimSpace(input.SystemPrompt)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	modelID := strings.TrimSpace(input.Model)
	if modelID == "" {
		modelID = s.defaultModel
	}

	conversation := &model.Conversation{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		SystemPrompt: prompt,
		Model:        modelID,
	}
	if err := s.convRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ConversationService) Get(userID, conversationID string) (*model.Conversation, error) {
	if userID == "" || conversationID == "" {
		return nil, ErrInvalidInput
	}
	conversation, err := s.convRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ConversationService) List(userID string, limit, offset int) (*ConversationPage, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	conversations, err := s.convRepo.ListByUserID(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.convRepo.CountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	return &ConversationPage{
		Conversations: conversations,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

func (s *ConversationService) Update(userID, conversationID string, input UpdateConversationInput) (*model.Conversation, error) {
	conversation, err := s.Get(userID, conversationID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := sanitizeTitle(*input.Title)
		if title == "" {
			return nil, ErrInvalidInput
		}
		updates["title"] = title
		conversation.Title = title
	}
	if input.SystemPrompt != nil {
		prompt := strings.TrimSpace(*input.SystemPrompt)
		updates["system_prompt"] = prompt
		conversation.SystemPrompt = prompt
	}
	if input.Model != nil {
		modelID := strings.TrimSpace(*input.Model)
		if modelID == "" {
			return nil, ErrInvalidInput
		}
		updates["model"] = modelID
		conversation.Model = modelID
	}
	if len(updates) == 0 {
		return conversation, nil
	}

	if err := s.convRepo.Update(conversationID, updates); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Delete removes the conversation, its messages, and any cached history.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.Get(userID, conversationID); err != nil {
		return err
	}
	if err := s.convRepo.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	if err := s.msgRepo.DeleteByConversationID(conversationID); err != nil {
		s.logger.Error("delete conversation messages failed",
			"conversation_id", conversationID, "error", err)
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, conversationID)
	}
	return nil
}

// History pages backwards through a conversation. The first page (no
// beforeID) at the default size is served from the Redis cache when fresh;
// every other shape goes straight to MySQL.
func (s *ConversationService) History(ctx context.Context, userID, conversationID, beforeID string, limit int) (*HistoryPage, error) {
	if limit <= 0 || limit > 200 {
		limit = historyPageLimit
	}
	if _, err := s.Get(userID, conversationID); err != nil {
		return nil, err
	}

	useCache := s.historyCache != nil && beforeID == "" && limit == historyPageLimit
	if useCache {
		if dirty, err := s.historyCache.IsDirty(ctx, conversationID); err == nil && !dirty {
			if cached, ok, err := s.historyCache.GetHistory(ctx, conversationID); err == nil && ok {
				return historyPageOf(cached, limit), nil
			}
		}
	}

	// One extra row tells us whether an older page exists.
	rows, err := s.msgRepo.ListBefore(conversationID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := s.historyCache.SetHistory(ctx, conversationID, rows); err != nil {
			s.logger.Warn("cache conversation history failed",
				"conversation_id", conversationID, "error", err)
		}
	}
	return historyPageOf(rows, limit), nil
}

// historyPageOf trims the probe row. Rows are chronological, so the page is
// the newest limit entries.
func historyPageOf(rows []model.Message, limit int) *HistoryPage {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[len(rows)-limit:]
	}
	if rows == nil {
		rows = []model.Message{}
	}
	return &HistoryPage{Messages: rows, HasMore: hasMore}
}

func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > 200 {
		title = string(runes[:200])
	}
	return title
}
