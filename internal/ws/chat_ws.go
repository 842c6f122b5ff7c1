package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"restaurant-chat/internal/apperr"
	"restaurant-chat/internal/auth"
	"restaurant-chat/internal/chat"
	"restaurant-chat/internal/models"
	"restaurant-chat/internal/observability"
	"restaurant-chat/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Inbound event names.
const (
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
	eventAck         = "ack"
)

// ChatService is the part of the coordinator the socket drives.
type ChatService interface {
	SendMessage(ctx context.Context, caller models.Identity, conversationID, content, originConnID string) (models.Conversation, error)
	MarkRead(ctx context.Context, caller models.Identity, conversationID, originConnID string) error
	Disconnect(connID string)
}

// ChatSocketHandler serves the live chat endpoint.
type ChatSocketHandler struct {
	hub        *Hub
	chats      ChatService
	verifier   auth.Verifier
	events     chat.EventSink
	log        *zap.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewChatSocketHandler constructs a ChatSocketHandler. events may be nil.
func NewChatSocketHandler(hub *Hub, chats ChatService, verifier auth.Verifier, events chat.EventSink, log *zap.Logger, sendBuffer int) *ChatSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatSocketHandler{
		hub:        hub,
		chats:      chats,
		verifier:   verifier,
		events:     events,
		log:        log,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates the handshake, upgrades the connection and assigns its room.
func (h *ChatSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("restaurant-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, err := auth.TokenFromHeader(c.GetHeader("Authorization"))
	if err != nil {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication error", "kind": apperr.KindAuthentication})
		return
	}

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		h.log.Info("ws handshake rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication error", "kind": apperr.KindAuthentication})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.ID,
		Role:        string(identity.Role),
		Room:        models.RoomForIdentity(identity),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(attribute.String("ws.conn_id", info.ConnID), attribute.String("ws.room", info.Room))

	client := NewClient(info.ConnID, identity, info, h.sendBuffer)
	h.hub.Join(client, info.Room)

	// The request context ends when this handler returns; the connection outlives it.
	connCtx := telemetry.WithRequestID(context.WithoutCancel(ctx), requestID)

	observability.IncWSActive(info.Role)
	observability.IncWSEvent("ws_connect")
	h.emit(connCtx, "ws_connect", info.eventPayload("ws_connect", ""))
	h.log.Info("ws connected",
		zap.String("conn_id", info.ConnID),
		zap.String("user_id", info.UserID),
		zap.String("room", info.Room),
	)

	go h.writePump(conn, client)
	go h.readPump(connCtx, conn, client)
}

func (h *ChatSocketHandler) readPump(ctx context.Context, conn *websocket.Conn, client *Client) {
	var closeReason string
	defer func() {
		h.chats.Disconnect(client.ID)
		client.Close()
		observability.DecWSActive(client.Info.Role)
		observability.IncWSEvent("ws_disconnect")
		h.emit(ctx, "ws_disconnect", client.Info.eventPayload("ws_disconnect", closeReason))
		h.log.Info("ws disconnected", zap.String("conn_id", client.ID), zap.String("reason", closeReason))
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.emit(ctx, "ws_error", client.Info.eventPayload("ws_error", closeReason))
			}
			return
		}
		h.dispatch(ctx, client, raw)
	}
}

func (h *ChatSocketHandler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("ws write failed", zap.String("conn_id", client.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch runs one inbound event. Failures are logged and the event is dropped;
// a frame carrying an ack id additionally gets an ack reply.
func (h *ChatSocketHandler) dispatch(ctx context.Context, client *Client, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		observability.IncWSEvent("malformed")
		h.log.Warn("ws malformed frame", zap.String("conn_id", client.ID), zap.Error(err))
		return
	}

	ctx, span := otel.Tracer("restaurant-chat/ws").Start(ctx, "ws.event")
	span.SetAttributes(attribute.String("ws.event", in.Event), attribute.String("ws.conn_id", client.ID))
	defer span.End()

	var err error
	switch in.Event {
	case EventSendMessage:
		observability.IncWSEvent(EventSendMessage)
		var payload struct {
			ChatID  string `json:"chatId"`
			Content string `json:"content"`
		}
		if err = json.Unmarshal(in.Data, &payload); err != nil {
			err = apperr.Validation("send_message expects {chatId, content}")
			break
		}
		_, err = h.chats.SendMessage(ctx, client.Identity, payload.ChatID, payload.Content, client.ID)
	case EventMarkRead:
		observability.IncWSEvent(EventMarkRead)
		var chatID string
		chatID, err = decodeChatID(in.Data)
		if err != nil {
			break
		}
		err = h.chats.MarkRead(ctx, client.Identity, chatID, client.ID)
	default:
		observability.IncWSEvent("unknown")
		err = apperr.Validation("unknown event")
	}

	if err != nil {
		h.log.Warn("ws event dropped",
			zap.String("conn_id", client.ID),
			zap.String("event", in.Event),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
	}
	if in.Ack != "" {
		h.ack(client, in.Ack, err)
	}
}

// decodeChatID accepts the raw chat id string or an object with a chatId field.
func decodeChatID(data json.RawMessage) (string, error) {
	var chatID string
	if err := json.Unmarshal(data, &chatID); err == nil {
		return chatID, nil
	}
	var obj struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.ChatID != "" {
		return obj.ChatID, nil
	}
	return "", apperr.Validation("mark_read expects a chat id")
}

func (h *ChatSocketHandler) ack(client *Client, id string, err error) {
	payload := ackPayload{Ack: id, OK: err == nil}
	if err != nil {
		payload.Error = apperr.MessageOf(err)
		payload.Kind = string(apperr.KindOf(err))
	}
	frame, encErr := encodeFrame(eventAck, payload)
	if encErr != nil {
		return
	}
	if !client.Enqueue(frame) {
		observability.IncWSDroppedFrame()
	}
}

func (h *ChatSocketHandler) emit(ctx context.Context, name string, payload any) {
	if h.events == nil {
		return
	}
	h.events.Emit(ctx, telemetry.KindWS, name, payload)
}
