package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"aichat/internal/ai"
	"aichat/internal/model"
	"aichat/internal/stream"
)

// ConversationStore is the slice of conversation persistence the streaming
// pipeline needs. The repository layer implements it against MySQL.
type ConversationStore interface {
	GetByIDAndUserID(conversationID, userID string) (*model.Conversation, error)
	AddMessages(conversationID string, delta int) error
	UpdateTitle(conversationID, title string) error
}

type MessageStore interface {
	Create(message *model.Message) error
	ListRecent(conversationID string, limit int) ([]model.Message, error)
}

// CompletionProvider is the hosted language-model service. StreamCompletion
// must invoke onDelta once per fragment, in arrival order, and must return
// an error from onDelta unchanged.
type CompletionProvider interface {
	StreamCompletion(ctx context.Context, modelID string, turns []ai.Turn, onDelta func(delta string) error) (model.TokenUsage, error)
	GenerateTitle(ctx context.Context, seed string) (string, error)
}

// ResolvedAttachment is an attachment reference after lookup: a live
// retrieval URL plus, for document attachments, the extracted text.
type ResolvedAttachment struct {
	Ref      model.AttachmentRef
	FileName string
	MimeType string
	URL      string
	Text     string
}

type AttachmentResolver interface {
	Resolve(ctx context.Context, userID string, refs []model.AttachmentRef) ([]ResolvedAttachment, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID string) error
	MarkDirty(ctx context.Context, conversationID string) error
	IsDirty(ctx context.Context, conversationID string) (bool, error)
}

type UsagePublisher interface {
	Publish(ctx context.Context, record model.UsageRecord) error
}

// Emitter receives protocol events as the pipeline produces them. The SSE
// handler implements it over the response body; the synchronous endpoint
// uses a no-op implementation.
type Emitter interface {
	Emit(ev stream.Event) error
}

type TurnInput struct {
	UserID         string
	ConversationID string
	Content        string
	Attachments    []model.AttachmentRef
}

type ExchangeResult struct {
	UserMessage       model.Message `json:"userMessage"`
	AssistantMessage  model.Message `json:"assistantMessage"`
	ConversationTitle string        `json:"conversationTitle,omitempty"`
}

type ChatService struct {
	conversations   ConversationStore
	messages        MessageStore
	provider        CompletionProvider
	attachments     AttachmentResolver
	historyCache    HistoryCache
	usage           UsagePublisher
	maxContext      int
	providerTimeout time.Duration
	logger          *slog.Logger
}

func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	provider CompletionProvider,
	attachments AttachmentResolver,
	historyCache HistoryCache,
	usage UsagePublisher,
	maxContext int,
	providerTimeout time.Duration,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &ChatService{
		conversations:   conversations,
		messages:        messages,
		provider:        provider,
		attachments:     attachments,
		historyCache:    historyCache,
		usage:           usage,
		maxContext:      maxContext,
		providerTimeout: providerTimeout,
		logger:          slog.Default(),
	}
}

// streamingSession is the ephemeral state of one in-flight turn. It is owned
// by a single request goroutine for its whole lifetime; nothing here is
// shared across sessions.
type streamingSession struct {
	conversationID string
	assistantID    string
	buf            strings.Builder
	usage          model.TokenUsage
}

// emitFailure marks an error that came from the Emitter (the write side)
// rather than from the provider. A failing write side means the client is
// gone, which the pipeline treats like a cancellation.
type emitFailure struct {
	err error
}

func (e emitFailure) Error() string { return e.err.Error() }
func (e emitFailure) Unwrap() error { return e.err }

// StreamTurn runs one user-turn-to-assistant-turn cycle against out.
// Pre-stream rejections (validation, ownership, user-message persistence)
// are returned as errors so the handler can answer with a proper HTTP
// status; once message_start has been emitted every outcome is surfaced on
// the stream itself and StreamTurn returns nil.
func (s *ChatService) StreamTurn(ctx context.Context, input TurnInput, out Emitter) error {
	_, err := s.run(ctx, input, out)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if emitErr := out.Emit(stream.ErrorEvent{Message: pe.Err.Error()}); emitErr != nil {
			s.logger.Debug("emit error event failed", "error", emitErr)
		}
		return nil
	}
	return err
}

// SendTurn is the synchronous variant: same pipeline, no event emission,
// the finished exchange returned as a value.
func (s *ChatService) SendTurn(ctx context.Context, input TurnInput) (*ExchangeResult, error) {
	return s.run(ctx, input, nopEmitter{})
}

func (s *ChatService) run(ctx context.Context, input TurnInput, out Emitter) (*ExchangeResult, error) {
	if input.UserID == "" || input.ConversationID == "" {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" && len(input.Attachments) == 0 {
		return nil, ErrEmptyTurn
	}

	conv, err := s.conversations.GetByIDAndUserID(input.ConversationID, input.UserID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	resolved, err := s.resolveAttachments(ctx, input.UserID, input.Attachments)
	if err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, conv.ID)
		_ = s.historyCache.DeleteHistory(ctx, conv.ID)
	}

	// The user turn becomes durable before the provider is ever called so a
	// failed completion cannot lose the user's input.
	userMessage := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        content,
		AttachmentList: input.Attachments,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.messages.Create(userMessage); err != nil {
		return nil, fmt.Errorf("persist user message failed: %w", err)
	}

	turns, err := s.assembleTurns(conv, userMessage, resolved)
	if err != nil {
		return nil, err
	}

	sess := &streamingSession{
		conversationID: conv.ID,
		assistantID:    uuid.NewString(),
	}
	if err := out.Emit(stream.MessageStart{MessageID: sess.assistantID}); err != nil {
		return nil, context.Canceled
	}

	callCtx := ctx
	if s.providerTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.providerTimeout)
		defer cancel()
	}

	usage, streamErr := s.provider.StreamCompletion(callCtx, conv.Model, turns, func(delta string) error {
		sess.buf.WriteString(delta)
		if err := out.Emit(stream.ContentDelta{Delta: delta}); err != nil {
			return emitFailure{err: err}
		}
		return nil
	})
	sess.usage = usage

	if streamErr != nil {
		return s.finishInterrupted(ctx, conv, userMessage, sess, streamErr)
	}

	title := ""
	if conv.MessageCount == 0 {
		title = s.generateTitle(ctx, content, resolved)
	}

	assistant, err := s.persistAssistant(conv, sess, false)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	s.finalizeConversation(ctx, conv, title)
	s.publishUsage(ctx, conv, assistant)

	res := &ExchangeResult{
		UserMessage:       *userMessage,
		AssistantMessage:  *assistant,
		ConversationTitle: title,
	}
	if err := out.Emit(stream.MessageEnd{
		MessageID:         assistant.ID,
		Tokens:            sess.usage,
		ConversationTitle: title,
	}); err != nil {
		// Everything is durable; a reader that vanished mid-goodbye is fine.
		s.logger.Debug("emit message_end failed", "conversation_id", conv.ID, "error", err)
	}
	return res, nil
}

// finishInterrupted handles every way a stream ends early: provider failure,
// timeout, client cancellation, or a dead write side. Partial assistant text
// is always persisted, tagged partial, before anything is reported.
func (s *ChatService) finishInterrupted(
	ctx context.Context,
	conv *model.Conversation,
	userMessage *model.Message,
	sess *streamingSession,
	streamErr error,
) (*ExchangeResult, error) {
	var ef emitFailure
	cancelled := ctx.Err() != nil ||
		errors.Is(streamErr, context.Canceled) ||
		errors.As(streamErr, &ef)

	if sess.buf.Len() == 0 {
		if cancelled {
			return nil, context.Canceled
		}
		return nil, &ProviderError{Err: streamErr}
	}

	assistant, err := s.persistAssistant(conv, sess, true)
	if err != nil {
		s.logger.Error("persist partial assistant message failed",
			"conversation_id", conv.ID, "error", err)
		if cancelled {
			return nil, context.Canceled
		}
		return nil, &ProviderError{Err: streamErr, Partial: true}
	}
	s.finalizeConversation(ctx, conv, "")
	s.publishUsage(ctx, conv, assistant)

	res := &ExchangeResult{
		UserMessage:      *userMessage,
		AssistantMessage: *assistant,
	}
	if cancelled {
		return res, context.Canceled
	}
	return res, &ProviderError{Err: streamErr, Partial: true}
}

func (s *ChatService) persistAssistant(conv *model.Conversation, sess *streamingSession, partial bool) (*model.Message, error) {
	msg := &model.Message{
		ID:             sess.assistantID,
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        sess.buf.String(),
		Partial:        partial,
		CreatedAt:      time.Now().UTC(),
	}
	if sess.usage != (model.TokenUsage{}) {
		usage := sess.usage
		msg.Tokens = &usage
	}
	if err := s.messages.Create(msg); err != nil {
		return nil, fmt.Errorf("persist assistant message failed: %w", err)
	}
	return msg, nil
}

func (s *ChatService) finalizeConversation(ctx context.Context, conv *model.Conversation, title string) {
	if err := s.conversations.AddMessages(conv.ID, 2); err != nil {
		s.logger.Error("update conversation counters failed",
			"conversation_id", conv.ID, "error", err)
	}
	if title != "" {
		if err := s.conversations.UpdateTitle(conv.ID, title); err != nil {
			s.logger.Warn("update conversation title failed",
				"conversation_id", conv.ID, "error", err)
		}
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.WithoutCancel(ctx), conv.ID)
	}
}

func (s *ChatService) publishUsage(ctx context.Context, conv *model.Conversation, assistant *model.Message) {
	if s.usage == nil || assistant.Tokens == nil {
		return
	}
	record := model.UsageRecord{
		UserID:         conv.UserID,
		ConversationID: conv.ID,
		MessageID:      assistant.ID,
		Model:          conv.Model,
		InputTokens:    assistant.Tokens.Input,
		OutputTokens:   assistant.Tokens.Output,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.usage.Publish(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Warn("publish usage record failed",
			"conversation_id", conv.ID, "error", err)
	}
}

func (s *ChatService) generateTitle(ctx context.Context, content string, resolved []ResolvedAttachment) string {
	if content == "" {
		for _, att := range resolved {
			if att.Ref.Type == model.AttachmentKindImage {
				return "Image analysis"
			}
		}
		if len(resolved) > 0 {
			return "File analysis: " + resolved[0].FileName
		}
		return ""
	}

	titleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	title, err := s.provider.GenerateTitle(titleCtx, content)
	if err != nil {
		s.logger.Warn("generate conversation title failed", "error", err)
		return ""
	}
	return title
}

func (s *ChatService) assembleTurns(conv *model.Conversation, userMessage *model.Message, resolved []ResolvedAttachment) ([]ai.Turn, error) {
	recent, err := s.messages.ListRecent(conv.ID, s.maxContext)
	if err != nil {
		return nil, fmt.Errorf("load history failed: %w", err)
	}

	turns := make([]ai.Turn, 0, len(recent)+2)
	if prompt := strings.TrimSpace(conv.SystemPrompt); prompt != "" {
		turns = append(turns, ai.Turn{Role: model.RoleSystem, Content: prompt})
	}
	for _, m := range recent {
		if m.ID == userMessage.ID {
			continue
		}
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		turns = append(turns, ai.Turn{Role: m.Role, Content: m.Content})
	}
	return append(turns, buildCurrentTurn(userMessage.Content, resolved)), nil
}

func buildCurrentTurn(content string, resolved []ResolvedAttachment) ai.Turn {
	turn := ai.Turn{Role: model.RoleUser, Content: content}

	var docs []ResolvedAttachment
	for _, att := range resolved {
		switch {
		case att.Ref.Type == model.AttachmentKindImage:
			turn.ImageURLs = append(turn.ImageURLs, att.URL)
		case att.Text != "":
			docs = append(docs, att)
		}
	}

	if turn.Content == "" && len(turn.ImageURLs) > 0 {
		turn.Content = "Describe and analyze this image."
	}
	if len(docs) > 0 {
		var b strings.Builder
		if turn.Content == "" {
			b.WriteString("Analyze the following file contents.")
		} else {
			b.WriteString(turn.Content)
		}
		b.WriteString("\n\n---\nThe user uploaded these files:\n")
		for _, doc := range docs {
			b.WriteString("\n[File: ")
			b.WriteString(doc.FileName)
			b.WriteString("]\n```\n")
			b.WriteString(doc.Text)
			b.WriteString("\n```\n")
		}
		turn.Content = b.String()
	}
	return turn
}

func (s *ChatService) resolveAttachments(ctx context.Context, userID string, refs []model.AttachmentRef) ([]ResolvedAttachment, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, ErrAttachmentNotFound
	}
	return s.attachments.Resolve(ctx, userID, refs)
}

type nopEmitter struct{}

func (nopEmitter) Emit(stream.Event) error { return nil }
