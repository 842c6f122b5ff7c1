package models

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive ConversationStatus = "active"
	StatusClosed ConversationStatus = "closed"
)

// Conversation is a chat thread between one client and one waiter.
type Conversation struct {
	ID          string             `db:"id" json:"id"`
	ClientID    string             `db:"client_id" json:"clientId"`
	WaiterID    string             `db:"waiter_id" json:"waiterId"`
	Messages    []Message          `db:"-" json:"messages,omitempty"`
	LastMessage string             `db:"last_message" json:"lastMessage"`
	UnreadCount int                `db:"unread_count" json:"unreadCount"`
	Status      ConversationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether the conversation still accepts the active-pair constraint.
func (c Conversation) IsActive() bool {
	return c.Status == StatusActive
}

// ConversationFilter narrows ListConversations to one participant.
type ConversationFilter struct {
	ClientID string
	WaiterID string
}

// Waiter is the subset of the directory record the chat core needs.
type Waiter struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"isActive"`
}
