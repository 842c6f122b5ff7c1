package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"restaurant-chat/internal/apperr"
	"restaurant-chat/internal/models"
	"restaurant-chat/internal/observability"
	"restaurant-chat/internal/repositories"
)

// Live event names.
const (
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
)

// Broadcaster is the room side of the coordinator.
type Broadcaster interface {
	// BroadcastToRoom enqueues event to every member of room except excludeConnID
	// and returns the number of members it was queued for.
	BroadcastToRoom(room, event string, payload any, excludeConnID string) int
	LeaveAll(connID string)
}

// EventSink receives domain events after a successful commit.
type EventSink interface {
	Emit(ctx context.Context, kind, name string, payload any)
}

const eventKind = "chat_events"

// Coordinator owns the chat protocol: persist first, then broadcast.
type Coordinator struct {
	store     repositories.ChatRepository
	directory repositories.WaiterDirectory
	rooms     Broadcaster
	events    EventSink
	log       *zap.Logger
	policy    MarkReadPolicy
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

type Option func(*Coordinator)

func WithMarkReadPolicy(p MarkReadPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithEvents(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// NewCoordinator wires the message store, the waiter directory and the room manager.
func NewCoordinator(store repositories.ChatRepository, directory repositories.WaiterDirectory, rooms Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		directory: directory,
		rooms:     rooms,
		log:       zap.NewNop(),
		policy:    MarkReadOpen,
		tracer:    otel.Tracer("restaurant-chat/chat"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy reports the active mark-read policy.
func (c *Coordinator) Policy() MarkReadPolicy {
	return c.policy
}

// CreateChat opens a conversation between a client and a waiter with its first message.
// Nothing is broadcast; staff learn about the chat from later sends or from ListChats.
func (c *Coordinator) CreateChat(ctx context.Context, caller models.Identity, waiterID, text string) (conv models.Conversation, err error) {
	ctx, span := c.startSpan(ctx, "chat.CreateChat", caller)
	defer func() { c.finish(span, "create_chat", err) }()

	if caller.Role != models.RoleClient {
		return models.Conversation{}, apperr.Authorization("only clients can start a chat")
	}
	waiterID = strings.TrimSpace(waiterID)
	if waiterID == "" {
		return models.Conversation{}, apperr.Validation("waiterId is required")
	}
	if strings.TrimSpace(text) == "" {
		return models.Conversation{}, apperr.Validation("message is required")
	}

	if _, err := c.directory.FindWaiter(ctx, waiterID); err != nil {
		if errors.Is(err, repositories.ErrWaiterNotFound) {
			return models.Conversation{}, apperr.NotFound("waiter not found")
		}
		return models.Conversation{}, c.storageError("find waiter", err)
	}

	_, exists, err := c.store.FindActiveConversation(ctx, caller.ID, waiterID)
	if err != nil {
		return models.Conversation{}, c.storageError("find active conversation", err)
	}
	if exists {
		return models.Conversation{}, apperr.Conflict("an active chat with this waiter already exists")
	}

	now := c.now().UTC()
	first := models.Message{
		ID:         c.newID(),
		Content:    text,
		SenderID:   caller.ID,
		SenderType: models.SenderTypeForRole(caller.Role),
		Timestamp:  now,
	}
	conv, err = c.store.CreateConversation(ctx, models.Conversation{
		ID:          c.newID(),
		ClientID:    caller.ID,
		WaiterID:    waiterID,
		Messages:    []models.Message{first},
		LastMessage: text,
		UnreadCount: 1,
		Status:      models.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrActiveConversationExists) {
			return models.Conversation{}, apperr.Conflict("an active chat with this waiter already exists")
		}
		return models.Conversation{}, c.storageError("create conversation", err)
	}

	c.emit(ctx, "chat_created", map[string]any{
		"chatId":   conv.ID,
		"clientId": conv.ClientID,
		"waiterId": conv.WaiterID,
	})
	return conv, nil
}

// SendMessage appends content to a conversation and notifies the opposite room.
// The returned conversation carries the header and, in Messages, only the new message.
func (c *Coordinator) SendMessage(ctx context.Context, caller models.Identity, conversationID, content, originConnID string) (conv models.Conversation, err error) {
	ctx, span := c.startSpan(ctx, "chat.SendMessage", caller)
	span.SetAttributes(attribute.String("chat.id", conversationID))
	defer func() { c.finish(span, "send_message", err) }()

	if strings.TrimSpace(conversationID) == "" {
		return models.Conversation{}, apperr.Validation("chatId is required")
	}
	if strings.TrimSpace(content) == "" {
		return models.Conversation{}, apperr.Validation("content is required")
	}

	current, err := c.loadHeader(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !canParticipate(caller, current) {
		return models.Conversation{}, apperr.Authorization("not a participant of this chat")
	}

	conv, err = c.store.AppendMessage(ctx, conversationID, models.Message{
		ID:         c.newID(),
		Content:    content,
		SenderID:   caller.ID,
		SenderType: models.SenderTypeForRole(caller.Role),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return models.Conversation{}, apperr.NotFound("chat not found")
		}
		return models.Conversation{}, c.storageError("append message", err)
	}
	if len(conv.Messages) == 0 {
		return models.Conversation{}, apperr.Storage("append message", fmt.Errorf("store returned no message for %s", conversationID))
	}
	stored := conv.Messages[len(conv.Messages)-1]

	room := models.StaffRoom
	if caller.IsStaff() {
		room = models.ClientRoom(current.ClientID)
	}
	delivered := c.rooms.BroadcastToRoom(room, EventNewMessage, models.NewMessageEvent{
		ChatID:  conv.ID,
		Message: stored,
	}, originConnID)
	span.SetAttributes(attribute.String("chat.room", room), attribute.Int("chat.delivered", delivered))

	c.emit(ctx, "message_sent", map[string]any{
		"chatId":     conv.ID,
		"messageId":  stored.ID,
		"senderId":   stored.SenderID,
		"senderType": stored.SenderType,
	})
	return conv, nil
}

// MarkRead flags every message of the conversation read and tells the staff room.
func (c *Coordinator) MarkRead(ctx context.Context, caller models.Identity, conversationID, originConnID string) (err error) {
	ctx, span := c.startSpan(ctx, "chat.MarkRead", caller)
	span.SetAttributes(attribute.String("chat.id", conversationID))
	defer func() { c.finish(span, "mark_read", err) }()

	if strings.TrimSpace(conversationID) == "" {
		return apperr.Validation("chatId is required")
	}

	if c.policy == MarkReadParticipants {
		current, err := c.loadHeader(ctx, conversationID)
		if err != nil {
			return err
		}
		if !canParticipate(caller, current) {
			return apperr.Authorization("not a participant of this chat")
		}
	}

	if err := c.store.MarkAllRead(ctx, conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return apperr.NotFound("chat not found")
		}
		return c.storageError("mark read", err)
	}

	c.rooms.BroadcastToRoom(models.StaffRoom, EventMessagesRead, conversationID, originConnID)
	c.emit(ctx, "messages_read", map[string]any{
		"chatId":   conversationID,
		"readerId": caller.ID,
	})
	return nil
}

// Disconnect drops a connection from every room.
func (c *Coordinator) Disconnect(connID string) {
	c.rooms.LeaveAll(connID)
}

// GetChat returns a conversation with its full message log. Clients see their own
// chats; staff see any chat they may post into.
func (c *Coordinator) GetChat(ctx context.Context, caller models.Identity, conversationID string) (conv models.Conversation, err error) {
	ctx, span := c.startSpan(ctx, "chat.GetChat", caller)
	defer func() { c.finish(span, "get_chat", err) }()

	conv, err = c.load(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !canParticipate(caller, conv) {
		return models.Conversation{}, apperr.Authorization("not a participant of this chat")
	}
	return conv, nil
}

// ListChats returns the caller's conversations, most recently updated first.
// Clients see their own chats, waiters the chats assigned to them, admins every chat.
func (c *Coordinator) ListChats(ctx context.Context, caller models.Identity) (convs []models.Conversation, err error) {
	ctx, span := c.startSpan(ctx, "chat.ListChats", caller)
	defer func() { c.finish(span, "list_chats", err) }()

	var filter models.ConversationFilter
	switch caller.Role {
	case models.RoleClient:
		filter.ClientID = caller.ID
	case models.RoleWaiter:
		filter.WaiterID = caller.ID
	case models.RoleAdmin:
	default:
		return nil, apperr.Authorization("unknown role")
	}

	convs, err = c.store.ListConversations(ctx, filter)
	if err != nil {
		return nil, c.storageError("list conversations", err)
	}
	return convs, nil
}

// CloseChat moves a conversation to the terminal closed state. Staff only.
func (c *Coordinator) CloseChat(ctx context.Context, caller models.Identity, conversationID string) (conv models.Conversation, err error) {
	ctx, span := c.startSpan(ctx, "chat.CloseChat", caller)
	defer func() { c.finish(span, "close_chat", err) }()

	if !caller.IsStaff() {
		return models.Conversation{}, apperr.Authorization("only staff can close a chat")
	}
	if strings.TrimSpace(conversationID) == "" {
		return models.Conversation{}, apperr.Validation("chatId is required")
	}

	conv, err = c.store.CloseConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return models.Conversation{}, apperr.NotFound("chat not found")
		}
		return models.Conversation{}, c.storageError("close conversation", err)
	}

	c.emit(ctx, "chat_closed", map[string]any{
		"chatId":   conv.ID,
		"closedBy": caller.ID,
	})
	return conv, nil
}

func (c *Coordinator) load(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, c.lookupError(err)
	}
	return conv, nil
}

// loadHeader is enough for authorization checks and skips the message log.
func (c *Coordinator) loadHeader(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := c.store.GetConversationHeader(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, c.lookupError(err)
	}
	return conv, nil
}

func (c *Coordinator) lookupError(err error) error {
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return apperr.NotFound("chat not found")
	}
	return c.storageError("get conversation", err)
}

// canParticipate: the conversation's client, or any staff member. It gates
// reading as well as writing so anyone who receives a message can re-fetch it.
func canParticipate(caller models.Identity, conv models.Conversation) bool {
	if caller.Role == models.RoleClient {
		return conv.ClientID == caller.ID
	}
	return caller.IsStaff()
}

func (c *Coordinator) storageError(op string, err error) error {
	c.log.Error("chat store failure", zap.String("op", op), zap.Error(err))
	return apperr.Storage(op+" failed", err)
}

func (c *Coordinator) emit(ctx context.Context, name string, payload any) {
	if c.events == nil {
		return
	}
	c.events.Emit(ctx, eventKind, name, payload)
}

func (c *Coordinator) startSpan(ctx context.Context, name string, caller models.Identity) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("caller.id", caller.ID),
		attribute.String("caller.role", string(caller.Role)),
	)
	return ctx, span
}

func (c *Coordinator) finish(span trace.Span, op string, err error) {
	observability.ObserveChatOp(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.MessageOf(err))
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
	}
	span.End()
}
