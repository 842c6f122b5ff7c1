package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"restaurant-chat/internal/models"
)

var (
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrActiveConversationExists = errors.New("active conversation already exists")
	ErrEmptyConversation        = errors.New("conversation must start with a message")
	ErrWaiterNotFound           = errors.New("waiter not found")
)

const activePairIndex = "conversations_active_pair"

const conversationColumns = `id, client_id, waiter_id, last_message, unread_count, status, created_at, updated_at`

// ChatRepository is the message store behind the chat coordinator.
//
// AppendMessage and MarkAllRead run entirely in the store; callers never
// read-modify-write a conversation.
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)
	// AppendMessage stores msg and updates the cache fields atomically. The returned
	// conversation carries the header fields and, in Messages, only the stored entry.
	AppendMessage(ctx context.Context, conversationID string, msg models.Message) (models.Conversation, error)
	MarkAllRead(ctx context.Context, conversationID string) error
	FindActiveConversation(ctx context.Context, clientID, waiterID string) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	// GetConversationHeader returns the conversation without its message log.
	GetConversationHeader(ctx context.Context, conversationID string) (models.Conversation, error)
	ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error)
	CloseConversation(ctx context.Context, conversationID string) (models.Conversation, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateConversation inserts the conversation and its opening messages in one transaction.
func (r *ChatRepo) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	if len(conv.Messages) == 0 {
		return models.Conversation{}, ErrEmptyConversation
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var created models.Conversation
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (id, client_id, waiter_id, last_message, unread_count, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+conversationColumns,
		conv.ID, conv.ClientID, conv.WaiterID, conv.LastMessage, conv.UnreadCount, conv.Status, conv.CreatedAt, conv.UpdatedAt).
		StructScan(&created)
	if err != nil {
		if isActivePairViolation(err) {
			return models.Conversation{}, ErrActiveConversationExists
		}
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	for _, m := range conv.Messages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_messages (id, conversation_id, content, sender_id, sender_type, read, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, created.ID, m.Content, m.SenderID, m.SenderType, m.Read, m.Timestamp); err != nil {
			return models.Conversation{}, fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, fmt.Errorf("commit: %w", err)
	}
	created.Messages = append([]models.Message(nil), conv.Messages...)
	return created, nil
}

// FindActiveConversation looks up the active conversation of a (client, waiter) pair.
func (r *ChatRepo) FindActiveConversation(ctx context.Context, clientID, waiterID string) (models.Conversation, bool, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations
        WHERE client_id=$1 AND waiter_id=$2 AND status='active' LIMIT 1`, clientID, waiterID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, nil
	}
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// GetConversation fetches a conversation with its full message log.
func (r *ChatRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := r.GetConversationHeader(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}

	msgs, err := r.listMessages(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (r *ChatRepo) GetConversationHeader(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// ListConversations returns conversation headers, most recently updated first.
func (r *ChatRepo) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE ($1 = '' OR client_id = $1) AND ($2 = '' OR waiter_id = $2)
        ORDER BY updated_at DESC`
	convs := []models.Conversation{}
	if err := r.db.SelectContext(ctx, &convs, query, filter.ClientID, filter.WaiterID); err != nil {
		return nil, err
	}
	return convs, nil
}

// CloseConversation moves a conversation to the terminal closed state.
func (r *ChatRepo) CloseConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.QueryRowxContext(ctx, `UPDATE conversations
        SET status = 'closed',
            updated_at = CASE WHEN status = 'closed' THEN updated_at ELSE GREATEST(clock_timestamp(), updated_at) END
        WHERE id = $1 RETURNING `+conversationColumns, conversationID).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

func isActivePairViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == activePairIndex
}
