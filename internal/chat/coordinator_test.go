package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"restaurant-chat/internal/apperr"
	"restaurant-chat/internal/mocks"
	"restaurant-chat/internal/models"
	"restaurant-chat/internal/repositories"
)

type frame struct {
	room    string
	event   string
	payload any
	exclude string
}

type recordingRooms struct {
	mu     sync.Mutex
	frames []frame
	left   []string
}

func (r *recordingRooms) BroadcastToRoom(room, event string, payload any, excludeConnID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{room: room, event: event, payload: payload, exclude: excludeConnID})
	return 1
}

func (r *recordingRooms) LeaveAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, connID)
}

func (r *recordingRooms) sent() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames...)
}

var (
	clientC = models.Identity{ID: "client-c", Role: models.RoleClient}
	clientD = models.Identity{ID: "client-d", Role: models.RoleClient}
	waiterW = models.Identity{ID: "waiter-w", Role: models.RoleWaiter}
	waiterX = models.Identity{ID: "waiter-x", Role: models.RoleWaiter}
	adminA  = models.Identity{ID: "admin-a", Role: models.RoleAdmin}
)

func newTestCoordinator(opts ...Option) (*Coordinator, *repositories.MemoryChatRepo, *recordingRooms) {
	store := repositories.NewMemoryChatRepo()
	directory := repositories.NewMemoryWaiterDirectory(
		models.Waiter{ID: waiterW.ID, Name: "Walter", IsActive: true},
		models.Waiter{ID: waiterX.ID, Name: "Xena", IsActive: true},
	)
	rooms := &recordingRooms{}
	return NewCoordinator(store, directory, rooms, opts...), store, rooms
}

func mustCreate(t *testing.T, c *Coordinator, caller models.Identity, waiterID, text string) models.Conversation {
	t.Helper()
	conv, err := c.CreateChat(context.Background(), caller, waiterID, text)
	require.NoError(t, err)
	return conv
}

func TestCreateChatStoresFirstMessage(t *testing.T) {
	c, store, rooms := newTestCoordinator()

	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	stored, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, "Need menu", stored.LastMessage)
	assert.Equal(t, "Need menu", stored.Messages[0].Content)
	assert.Equal(t, clientC.ID, stored.Messages[0].SenderID)
	assert.Equal(t, models.SenderClient, stored.Messages[0].SenderType)
	assert.False(t, stored.Messages[0].Read)
	assert.Equal(t, 1, stored.UnreadCount)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, clientC.ID, stored.ClientID)
	assert.Equal(t, waiterW.ID, stored.WaiterID)
	assert.Empty(t, rooms.sent())
}

func TestCreateChatRejectsStaff(t *testing.T) {
	c, _, _ := newTestCoordinator()

	_, err := c.CreateChat(context.Background(), waiterW, waiterX.ID, "hello")

	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestCreateChatValidation(t *testing.T) {
	c, store, _ := newTestCoordinator()

	cases := []struct {
		name     string
		waiterID string
		text     string
	}{
		{name: "missing waiter", waiterID: "", text: "hi"},
		{name: "blank waiter", waiterID: "   ", text: "hi"},
		{name: "missing message", waiterID: waiterW.ID, text: ""},
		{name: "whitespace message", waiterID: waiterW.ID, text: " \n\t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.CreateChat(context.Background(), clientC, tc.waiterID, tc.text)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	all, err := store.ListConversations(context.Background(), models.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateChatUnknownWaiterCreatesNothing(t *testing.T) {
	c, store, _ := newTestCoordinator()

	_, err := c.CreateChat(context.Background(), clientC, "ghost", "anyone there?")

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	all, err := store.ListConversations(context.Background(), models.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateChatDuplicateActivePair(t *testing.T) {
	c, _, _ := newTestCoordinator()
	first := mustCreate(t, c, clientC, waiterW.ID, "first")

	_, err := c.CreateChat(context.Background(), clientC, waiterW.ID, "second")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// other pairs are independent
	mustCreate(t, c, clientC, waiterX.ID, "other waiter")
	mustCreate(t, c, clientD, waiterW.ID, "other client")

	_, err = c.CloseChat(context.Background(), waiterW, first.ID)
	require.NoError(t, err)
	reopened := mustCreate(t, c, clientC, waiterW.ID, "again")
	assert.NotEqual(t, first.ID, reopened.ID)
}

func TestCreateChatConflictFromStore(t *testing.T) {
	store := new(mocks.ChatRepositoryMock)
	directory := new(mocks.WaiterDirectoryMock)
	c := NewCoordinator(store, directory, &recordingRooms{})

	directory.On("FindWaiter", mock.Anything, waiterW.ID).Return(models.Waiter{ID: waiterW.ID}, nil)
	store.On("FindActiveConversation", mock.Anything, clientC.ID, waiterW.ID).Return(nil, false, nil)
	store.On("CreateConversation", mock.Anything, mock.AnythingOfType("models.Conversation")).
		Return(nil, repositories.ErrActiveConversationExists)

	_, err := c.CreateChat(context.Background(), clientC, waiterW.ID, "hello")

	assert.True(t, apperr.Is(err, apperr.KindConflict))
	store.AssertExpectations(t)
	directory.AssertExpectations(t)
}

func TestCreateChatDirectoryFailureIsStorage(t *testing.T) {
	store := new(mocks.ChatRepositoryMock)
	directory := new(mocks.WaiterDirectoryMock)
	c := NewCoordinator(store, directory, &recordingRooms{})

	directory.On("FindWaiter", mock.Anything, waiterW.ID).Return(nil, errors.New("directory unavailable"))

	_, err := c.CreateChat(context.Background(), clientC, waiterW.ID, "hello")

	assert.True(t, apperr.Is(err, apperr.KindStorage))
	store.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
}

func TestSendMessageFromClientBroadcastsToStaff(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")
	before, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)

	updated, err := c.SendMessage(context.Background(), clientC, conv.ID, "And water", "conn-c")
	require.NoError(t, err)
	require.Len(t, updated.Messages, 1)

	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, after.Messages, len(before.Messages)+1)
	assert.Equal(t, before.UnreadCount+1, after.UnreadCount)
	assert.Equal(t, after.Messages[len(after.Messages)-1].Content, after.LastMessage)
	assert.Equal(t, "And water", after.LastMessage)

	sent := rooms.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.StaffRoom, sent[0].room)
	assert.Equal(t, EventNewMessage, sent[0].event)
	assert.Equal(t, "conn-c", sent[0].exclude)
	payload, ok := sent[0].payload.(models.NewMessageEvent)
	require.True(t, ok)
	assert.Equal(t, conv.ID, payload.ChatID)
	assert.Equal(t, "And water", payload.Message.Content)
	assert.Equal(t, clientC.ID, payload.Message.SenderID)
	assert.Equal(t, models.SenderClient, payload.Message.SenderType)
	assert.Equal(t, updated.Messages[0], payload.Message)
}

func TestSendMessageFromStaffBroadcastsToClientRoom(t *testing.T) {
	c, _, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	_, err := c.SendMessage(context.Background(), waiterW, conv.ID, "Coming right up", "conn-w")
	require.NoError(t, err)

	sent := rooms.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.ClientRoom(clientC.ID), sent[0].room)
	assert.NotEqual(t, models.StaffRoom, sent[0].room)
	payload := sent[0].payload.(models.NewMessageEvent)
	assert.Equal(t, models.SenderWaiter, payload.Message.SenderType)
}

func TestSendMessageAnyStaffMayPost(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	_, err := c.SendMessage(context.Background(), waiterX, conv.ID, "I can help", "")
	require.NoError(t, err)
	_, err = c.SendMessage(context.Background(), adminA, conv.ID, "Admin here", "")
	require.NoError(t, err)

	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, after.Messages, 3)
	assert.Equal(t, models.SenderWaiter, after.Messages[1].SenderType)
	assert.Equal(t, models.SenderAdmin, after.Messages[2].SenderType)
	assert.Len(t, rooms.sent(), 2)
}

func TestSendMessageRejectsForeignClient(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	_, err := c.SendMessage(context.Background(), clientD, conv.ID, "let me in", "")

	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, after.Messages, 1)
	assert.Equal(t, 1, after.UnreadCount)
	assert.Empty(t, rooms.sent())
}

func TestSendMessageUnknownConversation(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	_, err := c.SendMessage(context.Background(), clientC, "missing", "hello?", "")

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, rooms.sent())
	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, after.Messages, 1)
	assert.Equal(t, 1, after.UnreadCount)
}

func TestSendMessageValidation(t *testing.T) {
	c, _, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	_, err := c.SendMessage(context.Background(), clientC, conv.ID, "   ", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = c.SendMessage(context.Background(), clientC, "", "hi", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, rooms.sent())
}

func TestSendMessageStorageFailureSkipsBroadcast(t *testing.T) {
	store := new(mocks.ChatRepositoryMock)
	rooms := new(mocks.BroadcasterMock)
	events := new(mocks.EventSinkMock)
	c := NewCoordinator(store, new(mocks.WaiterDirectoryMock), rooms, WithEvents(events))

	store.On("GetConversationHeader", mock.Anything, "conv-1").
		Return(models.Conversation{ID: "conv-1", ClientID: clientC.ID, WaiterID: waiterW.ID, Status: models.StatusActive}, nil)
	store.On("AppendMessage", mock.Anything, "conv-1", mock.AnythingOfType("models.Message")).
		Return(nil, errors.New("connection reset"))

	_, err := c.SendMessage(context.Background(), clientC, "conv-1", "hello", "conn-1")

	assert.True(t, apperr.Is(err, apperr.KindStorage))
	rooms.AssertNotCalled(t, "BroadcastToRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestSendMessageEmitsEventAfterBroadcast(t *testing.T) {
	store := new(mocks.ChatRepositoryMock)
	rooms := new(mocks.BroadcasterMock)
	events := new(mocks.EventSinkMock)
	c := NewCoordinator(store, new(mocks.WaiterDirectoryMock), rooms,
		WithEvents(events), WithIDGenerator(func() string { return "msg-1" }))

	conv := models.Conversation{ID: "conv-1", ClientID: clientC.ID, WaiterID: waiterW.ID, Status: models.StatusActive}
	stored := models.Message{ID: "msg-1", Content: "hello", SenderID: clientC.ID, SenderType: models.SenderClient}
	appended := conv
	appended.Messages = []models.Message{stored}
	appended.LastMessage = "hello"
	appended.UnreadCount = 1

	store.On("GetConversationHeader", mock.Anything, "conv-1").Return(conv, nil)
	store.On("AppendMessage", mock.Anything, "conv-1", models.Message{
		ID: "msg-1", Content: "hello", SenderID: clientC.ID, SenderType: models.SenderClient,
	}).Return(appended, nil)

	var order []string
	rooms.On("BroadcastToRoom", models.StaffRoom, EventNewMessage, models.NewMessageEvent{ChatID: "conv-1", Message: stored}, "conn-1").
		Run(func(mock.Arguments) { order = append(order, "broadcast") }).Return(2)
	events.On("Emit", mock.Anything, "chat_events", "message_sent", mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "emit") }).Return()

	_, err := c.SendMessage(context.Background(), clientC, "conv-1", "hello", "conn-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"broadcast", "emit"}, order)
	store.AssertNotCalled(t, "GetConversation", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
	rooms.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestConcurrentSendsAreAllKept(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	const senders = 32
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := clientC
			if i%2 == 1 {
				caller = waiterW
			}
			_, err := c.SendMessage(context.Background(), caller, conv.ID, fmt.Sprintf("msg-%d", i), fmt.Sprintf("conn-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, after.Messages, senders+1)
	assert.Equal(t, senders+1, after.UnreadCount)
	assert.Equal(t, after.Messages[len(after.Messages)-1].Content, after.LastMessage)
	assert.Len(t, rooms.sent(), senders)

	seen := map[string]bool{}
	for _, m := range after.Messages[1:] {
		seen[m.Content] = true
	}
	assert.Len(t, seen, senders)
}

func TestMarkReadClearsUnreadAndNotifiesStaff(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")
	_, err := c.SendMessage(context.Background(), waiterW, conv.ID, "Coming", "conn-w")
	require.NoError(t, err)

	require.NoError(t, c.MarkRead(context.Background(), waiterW, conv.ID, "conn-w"))

	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.UnreadCount)
	for _, m := range after.Messages {
		assert.True(t, m.Read)
	}

	sent := rooms.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, frame{room: models.StaffRoom, event: EventMessagesRead, payload: conv.ID, exclude: "conn-w"}, sent[1])
}

func TestMarkReadIsIdempotent(t *testing.T) {
	c, store, rooms := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	require.NoError(t, c.MarkRead(context.Background(), waiterW, conv.ID, ""))
	require.NoError(t, c.MarkRead(context.Background(), waiterW, conv.ID, ""))

	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.UnreadCount)
	assert.True(t, after.Messages[0].Read)
	assert.Len(t, rooms.sent(), 2)
}

func TestMarkReadUnknownConversation(t *testing.T) {
	c, _, rooms := newTestCoordinator()

	err := c.MarkRead(context.Background(), waiterW, "missing", "")

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, rooms.sent())
}

func TestMarkReadOpenPolicyAllowsAnyCaller(t *testing.T) {
	c, _, _ := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	assert.Equal(t, MarkReadOpen, c.Policy())
	assert.NoError(t, c.MarkRead(context.Background(), clientD, conv.ID, ""))
}

func TestMarkReadParticipantsPolicy(t *testing.T) {
	c, store, rooms := newTestCoordinator(WithMarkReadPolicy(MarkReadParticipants))
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")

	err := c.MarkRead(context.Background(), clientD, conv.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	after, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.UnreadCount)
	assert.Empty(t, rooms.sent())

	assert.NoError(t, c.MarkRead(context.Background(), clientC, conv.ID, ""))
	assert.NoError(t, c.MarkRead(context.Background(), waiterX, conv.ID, ""))

	err = c.MarkRead(context.Background(), waiterW, "missing", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	c, _, rooms := newTestCoordinator()

	c.Disconnect("conn-1")

	assert.Equal(t, []string{"conn-1"}, rooms.left)
}

func TestListChatsScopesByRole(t *testing.T) {
	c, _, _ := newTestCoordinator()
	mustCreate(t, c, clientC, waiterW.ID, "c-w")
	mustCreate(t, c, clientC, waiterX.ID, "c-x")
	mustCreate(t, c, clientD, waiterW.ID, "d-w")

	ctx := context.Background()
	mine, err := c.ListChats(ctx, clientC)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assigned, err := c.ListChats(ctx, waiterW)
	require.NoError(t, err)
	assert.Len(t, assigned, 2)
	for _, conv := range assigned {
		assert.Equal(t, waiterW.ID, conv.WaiterID)
	}

	all, err := c.ListChats(ctx, adminA)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetChatVisibility(t *testing.T) {
	c, _, _ := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")
	ctx := context.Background()

	got, err := c.GetChat(ctx, clientC, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)

	_, err = c.GetChat(ctx, waiterW, conv.ID)
	assert.NoError(t, err)
	_, err = c.GetChat(ctx, adminA, conv.ID)
	assert.NoError(t, err)

	_, err = c.GetChat(ctx, clientD, conv.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = c.GetChat(ctx, clientC, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGetChatStaffCanReadWhatTheyCanPost(t *testing.T) {
	c, _, _ := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")
	ctx := context.Background()

	_, err := c.SendMessage(ctx, waiterX, conv.ID, "I can help", "")
	require.NoError(t, err)

	got, err := c.GetChat(ctx, waiterX, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "I can help", got.Messages[1].Content)
}

func TestCloseChat(t *testing.T) {
	c, _, _ := newTestCoordinator()
	conv := mustCreate(t, c, clientC, waiterW.ID, "Need menu")
	ctx := context.Background()

	_, err := c.CloseChat(ctx, clientC, conv.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	closed, err := c.CloseChat(ctx, adminA, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	_, err = c.CloseChat(ctx, waiterW, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestParseMarkReadPolicy(t *testing.T) {
	p, err := ParseMarkReadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MarkReadOpen, p)

	p, err = ParseMarkReadPolicy(" Participants ")
	require.NoError(t, err)
	assert.Equal(t, MarkReadParticipants, p)

	_, err = ParseMarkReadPolicy("nobody")
	assert.Error(t, err)
}
