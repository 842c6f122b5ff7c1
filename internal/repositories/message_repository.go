package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restaurant-chat/internal/models"
)

// appendMessageQuery locks the conversation row, bumps the cache fields and inserts
// the message in a single statement. The message timestamp is the new updated_at,
// which never goes backwards for a conversation.
const appendMessageQuery = `WITH conv AS (
    UPDATE conversations
    SET last_message = $3,
        unread_count = unread_count + 1,
        updated_at = GREATEST(clock_timestamp(), updated_at)
    WHERE id = $1
    RETURNING ` + conversationColumns + `
), msg AS (
    INSERT INTO conversation_messages (id, conversation_id, content, sender_id, sender_type, read, created_at)
    SELECT $2, conv.id, $3, $4, $5, FALSE, conv.updated_at FROM conv
)
SELECT ` + conversationColumns + ` FROM conv`

// AppendMessage stores a message and updates last_message, unread_count and updated_at.
func (r *ChatRepo) AppendMessage(ctx context.Context, conversationID string, msg models.Message) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.QueryRowxContext(ctx, appendMessageQuery,
		conversationID, msg.ID, msg.Content, msg.SenderID, msg.SenderType).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	msg.Read = false
	msg.Timestamp = conv.UpdatedAt
	conv.Messages = []models.Message{msg}
	return conv, nil
}

// MarkAllRead flags every message of the conversation read and resets unread_count.
// The conversation row is locked first so the message update, which takes a fresh
// snapshot, sees every append committed before the lock was granted.
func (r *ChatRepo) MarkAllRead(ctx context.Context, conversationID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowxContext(ctx, `UPDATE conversations
        SET unread_count = 0,
            updated_at = GREATEST(clock_timestamp(), updated_at)
        WHERE id = $1
        RETURNING id`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversation_messages SET read = TRUE
        WHERE conversation_id = $1 AND read = FALSE`, conversationID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ChatRepo) listMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, content, sender_id, sender_type, read, created_at
        FROM conversation_messages
        WHERE conversation_id=$1
        ORDER BY seq ASC`, conversationID)
	return msgs, err
}
