package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"restaurant-chat/internal/models"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	args := m.Called(ctx, conv)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ChatRepositoryMock) AppendMessage(ctx context.Context, conversationID string, msg models.Message) (models.Conversation, error) {
	args := m.Called(ctx, conversationID, msg)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ChatRepositoryMock) MarkAllRead(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) FindActiveConversation(ctx context.Context, clientID, waiterID string) (models.Conversation, bool, error) {
	args := m.Called(ctx, clientID, waiterID)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ChatRepositoryMock) GetConversationHeader(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ChatRepositoryMock) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	args := m.Called(ctx, filter)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) CloseConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

type WaiterDirectoryMock struct {
	mock.Mock
}

func (m *WaiterDirectoryMock) FindWaiter(ctx context.Context, waiterID string) (models.Waiter, error) {
	args := m.Called(ctx, waiterID)
	var out models.Waiter
	if val := args.Get(0); val != nil {
		out = val.(models.Waiter)
	}
	return out, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var out models.Identity
	if val := args.Get(0); val != nil {
		out = val.(models.Identity)
	}
	return out, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastToRoom(room, event string, payload any, excludeConnID string) int {
	args := m.Called(room, event, payload, excludeConnID)
	return args.Int(0)
}

func (m *BroadcasterMock) LeaveAll(connID string) {
	m.Called(connID)
}

type EventSinkMock struct {
	mock.Mock
}

func (m *EventSinkMock) Emit(ctx context.Context, kind, name string, payload any) {
	m.Called(ctx, kind, name, payload)
}
