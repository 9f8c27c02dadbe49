package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aichat/internal/ai"
	"aichat/internal/model"
	"aichat/internal/stream"
)

type fakeConvStore struct {
	conv       *model.Conversation
	getCalls   int
	addCalls   []int
	titleCalls []string
}

func (f *fakeConvStore) GetByIDAndUserID(conversationID, userID string) (*model.Conversation, error) {
	f.getCalls++
	if f.conv != nil && f.conv.ID == conversationID && f.conv.UserID == userID {
		c := *f.conv
		return &c, nil
	}
	return nil, nil
}

func (f *fakeConvStore) AddMessages(conversationID string, delta int) error {
	f.addCalls = append(f.addCalls, delta)
	return nil
}

func (f *fakeConvStore) UpdateTitle(conversationID, title string) error {
	f.titleCalls = append(f.titleCalls, title)
	return nil
}

type fakeMessageStore struct {
	created     []model.Message
	createCalls int
}

func (f *fakeMessageStore) Create(m *model.Message) error {
	f.createCalls++
	f.created = append(f.created, *m)
	return nil
}

func (f *fakeMessageStore) ListRecent(conversationID string, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.created {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageStore) byRole(role string) []model.Message {
	var out []model.Message
	for _, m := range f.created {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type fakeProvider struct {
	deltas      []string
	usage       model.TokenUsage
	err         error
	cancelAfter int // index after which ctx is cancelled, -1 disables
	cancel      context.CancelFunc
	title       string

	calls      int
	titleCalls int
	gotModel   string
	gotTurns   []ai.Turn
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, modelID string, turns []ai.Turn, onDelta func(string) error) (model.TokenUsage, error) {
	f.calls++
	f.gotModel = modelID
	f.gotTurns = turns

	for i, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return model.TokenUsage{}, err
		}
		if f.cancel != nil && i == f.cancelAfter {
			f.cancel()
			return model.TokenUsage{}, ctx.Err()
		}
	}
	if f.err != nil {
		return model.TokenUsage{}, f.err
	}
	return f.usage, nil
}

func (f *fakeProvider) GenerateTitle(ctx context.Context, seed string) (string, error) {
	f.titleCalls++
	return f.title, nil
}

type fakeUsagePublisher struct {
	records []model.UsageRecord
}

func (f *fakeUsagePublisher) Publish(ctx context.Context, record model.UsageRecord) error {
	f.records = append(f.records, record)
	return nil
}

type recordingEmitter struct {
	events []stream.Event
}

func (e *recordingEmitter) Emit(ev stream.Event) error {
	e.events = append(e.events, ev)
	return nil
}

func testConversation() *model.Conversation {
	return &model.Conversation{
		ID:           "conv-1",
		UserID:       "user-1",
		Title:        "New Conversation",
		SystemPrompt: "You are a helpful AI assistant.",
		Model:        "gpt-4o",
		MessageCount: 4,
	}
}

func newTestService(conv *fakeConvStore, msgs *fakeMessageStore, provider *fakeProvider, usage UsagePublisher) *ChatService {
	return NewChatService(conv, msgs, provider, nil, nil, usage, 20, time.Minute)
}

func TestStreamTurnSuccess(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{deltas: []string{"4"}, usage: model.TokenUsage{Input: 5, Output: 1}}
	usagePub := &fakeUsagePublisher{}
	svc := newTestService(convStore, msgStore, provider, usagePub)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "2+2?",
	}, emitter)
	require.NoError(t, err)

	require.Len(t, emitter.events, 3)
	start, ok := emitter.events[0].(stream.MessageStart)
	require.True(t, ok)
	assert.NotEmpty(t, start.MessageID)

	delta, ok := emitter.events[1].(stream.ContentDelta)
	require.True(t, ok)
	assert.Equal(t, "4", delta.Delta)

	end, ok := emitter.events[2].(stream.MessageEnd)
	require.True(t, ok)
	assert.Equal(t, start.MessageID, end.MessageID)
	assert.Equal(t, model.TokenUsage{Input: 5, Output: 1}, end.Tokens)

	userMsgs := msgStore.byRole(model.RoleUser)
	require.Len(t, userMsgs, 1)
	assert.Equal(t, "2+2?", userMsgs[0].Content)

	assistantMsgs := msgStore.byRole(model.RoleAssistant)
	require.Len(t, assistantMsgs, 1)
	assert.Equal(t, "4", assistantMsgs[0].Content)
	assert.Equal(t, start.MessageID, assistantMsgs[0].ID)
	assert.False(t, assistantMsgs[0].Partial)
	require.NotNil(t, assistantMsgs[0].Tokens)
	assert.Equal(t, model.TokenUsage{Input: 5, Output: 1}, *assistantMsgs[0].Tokens)

	assert.Equal(t, []int{2}, convStore.addCalls)

	require.Len(t, usagePub.records, 1)
	assert.Equal(t, 5, usagePub.records[0].InputTokens)
	assert.Equal(t, 1, usagePub.records[0].OutputTokens)
	assert.Equal(t, "gpt-4o", usagePub.records[0].Model)
}

func TestStreamTurnFragmentOrdering(t *testing.T) {
	cases := [][]string{
		{},
		{"only"},
		{"a", "b", "c"},
		{"The ", "quick ", "brown ", "fox ", "jumps"},
	}

	for _, deltas := range cases {
		convStore := &fakeConvStore{conv: testConversation()}
		msgStore := &fakeMessageStore{}
		provider := &fakeProvider{deltas: deltas}
		svc := newTestService(convStore, msgStore, provider, nil)
		emitter := &recordingEmitter{}

		err := svc.StreamTurn(context.Background(), TurnInput{
			UserID:         "user-1",
			ConversationID: "conv-1",
			Content:        "go",
		}, emitter)
		require.NoError(t, err)

		var want string
		var got string
		for _, d := range deltas {
			want += d
		}
		for _, ev := range emitter.events {
			if delta, ok := ev.(stream.ContentDelta); ok {
				got += delta.Delta
			}
		}
		assert.Equal(t, want, got)

		assistantMsgs := msgStore.byRole(model.RoleAssistant)
		require.Len(t, assistantMsgs, 1)
		assert.Equal(t, want, assistantMsgs[0].Content)
	}
}

func TestStreamTurnMidStreamFailurePersistsPartial(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{
		deltas: []string{"Hello, ", "world"},
		err:    errors.New("provider connection reset"),
	}
	svc := newTestService(convStore, msgStore, provider, nil)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "hi",
	}, emitter)
	require.NoError(t, err)

	require.Len(t, emitter.events, 4)
	_, ok := emitter.events[0].(stream.MessageStart)
	require.True(t, ok)
	_, ok = emitter.events[1].(stream.ContentDelta)
	require.True(t, ok)
	_, ok = emitter.events[2].(stream.ContentDelta)
	require.True(t, ok)
	errEvent, ok := emitter.events[3].(stream.ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEvent.Message, "connection reset")

	assistantMsgs := msgStore.byRole(model.RoleAssistant)
	require.Len(t, assistantMsgs, 1)
	assert.Equal(t, "Hello, world", assistantMsgs[0].Content)
	assert.True(t, assistantMsgs[0].Partial)

	assert.Equal(t, []int{2}, convStore.addCalls)
}

func TestStreamTurnPreStreamFailurePersistsNoAssistant(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{err: errors.New("model overloaded")}
	svc := newTestService(convStore, msgStore, provider, nil)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "hi",
	}, emitter)
	require.NoError(t, err)

	last := emitter.events[len(emitter.events)-1]
	errEvent, ok := last.(stream.ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEvent.Message, "overloaded")

	assert.Empty(t, msgStore.byRole(model.RoleAssistant))
	require.Len(t, msgStore.byRole(model.RoleUser), 1)
	assert.Empty(t, convStore.addCalls)
}

func TestStreamTurnCancellationPersistsPartialWithoutError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{
		deltas:      []string{"Once upon", " a time"},
		cancelAfter: 0,
		cancel:      cancel,
	}
	svc := newTestService(convStore, msgStore, provider, nil)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(ctx, TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "tell me a story",
	}, emitter)
	require.NoError(t, err)

	for _, ev := range emitter.events {
		_, isErr := ev.(stream.ErrorEvent)
		assert.False(t, isErr, "no error event may follow a cancellation")
	}

	assistantMsgs := msgStore.byRole(model.RoleAssistant)
	require.Len(t, assistantMsgs, 1)
	assert.Equal(t, "Once upon", assistantMsgs[0].Content)
	assert.True(t, assistantMsgs[0].Partial)
}

func TestStreamTurnRejectsEmptyTurn(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{}
	svc := newTestService(convStore, msgStore, provider, nil)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "   ",
	}, emitter)
	require.ErrorIs(t, err, ErrEmptyTurn)

	assert.Zero(t, convStore.getCalls)
	assert.Zero(t, msgStore.createCalls)
	assert.Zero(t, provider.calls)
	assert.Empty(t, emitter.events)
}

func TestStreamTurnOwnershipIsolation(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{deltas: []string{"secret"}}
	svc := newTestService(convStore, msgStore, provider, nil)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "someone-else",
		ConversationID: "conv-1",
		Content:        "hello",
	}, emitter)
	require.ErrorIs(t, err, ErrConversationNotFound)

	assert.Zero(t, provider.calls)
	assert.Zero(t, msgStore.createCalls)
	assert.Empty(t, emitter.events)
}

func TestStreamTurnGeneratesTitleOnFirstExchange(t *testing.T) {
	conv := testConversation()
	conv.MessageCount = 0
	convStore := &fakeConvStore{conv: conv}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{deltas: []string{"sunny"}, title: "Weather in Paris"}
	svc := newTestService(convStore, msgStore, provider, nil)
	emitter := &recordingEmitter{}

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "what's the weather in Paris?",
	}, emitter)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.titleCalls)
	assert.Equal(t, []string{"Weather in Paris"}, convStore.titleCalls)

	end, ok := emitter.events[len(emitter.events)-1].(stream.MessageEnd)
	require.True(t, ok)
	assert.Equal(t, "Weather in Paris", end.ConversationTitle)
}

func TestStreamTurnSkipsTitleOnLaterExchanges(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{deltas: []string{"ok"}, title: "unused"}
	svc := newTestService(convStore, msgStore, provider, nil)

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "again",
	}, &recordingEmitter{})
	require.NoError(t, err)

	assert.Zero(t, provider.titleCalls)
	assert.Empty(t, convStore.titleCalls)
}

func TestStreamTurnAssemblesBoundedHistory(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{
		created: []model.Message{
			{ID: "m-1", ConversationID: "conv-1", Role: model.RoleUser, Content: "first question"},
			{ID: "m-2", ConversationID: "conv-1", Role: model.RoleAssistant, Content: "first answer"},
		},
	}
	provider := &fakeProvider{deltas: []string{"second answer"}}
	svc := newTestService(convStore, msgStore, provider, nil)

	err := svc.StreamTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "second question",
	}, &recordingEmitter{})
	require.NoError(t, err)

	require.Len(t, provider.gotTurns, 4)
	assert.Equal(t, model.RoleSystem, provider.gotTurns[0].Role)
	assert.Equal(t, "You are a helpful AI assistant.", provider.gotTurns[0].Content)
	assert.Equal(t, "first question", provider.gotTurns[1].Content)
	assert.Equal(t, "first answer", provider.gotTurns[2].Content)
	assert.Equal(t, model.RoleUser, provider.gotTurns[3].Role)
	assert.Equal(t, "second question", provider.gotTurns[3].Content)
	assert.Equal(t, "gpt-4o", provider.gotModel)
}

func TestSendTurnReturnsFinalizedExchange(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{deltas: []string{"4"}, usage: model.TokenUsage{Input: 5, Output: 1}}
	svc := newTestService(convStore, msgStore, provider, nil)

	result, err := svc.SendTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "2+2?",
	})
	require.NoError(t, err)

	assert.Equal(t, "2+2?", result.UserMessage.Content)
	assert.Equal(t, model.RoleUser, result.UserMessage.Role)
	assert.Equal(t, "4", result.AssistantMessage.Content)
	assert.Equal(t, model.RoleAssistant, result.AssistantMessage.Role)
	require.NotNil(t, result.AssistantMessage.Tokens)
	assert.Equal(t, model.TokenUsage{Input: 5, Output: 1}, *result.AssistantMessage.Tokens)
}

func TestSendTurnSurfacesProviderFailure(t *testing.T) {
	convStore := &fakeConvStore{conv: testConversation()}
	msgStore := &fakeMessageStore{}
	provider := &fakeProvider{err: errors.New("model overloaded")}
	svc := newTestService(convStore, msgStore, provider, nil)

	_, err := svc.SendTurn(context.Background(), TurnInput{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Content:        "hi",
	})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Partial)
}
