package models

import "time"

// Message is a single entry of a conversation log.
type Message struct {
	ID         string     `db:"id" json:"id"`
	Content    string     `db:"content" json:"content"`
	SenderID   string     `db:"sender_id" json:"sender"`
	SenderType SenderType `db:"sender_type" json:"senderType"`
	Timestamp  time.Time  `db:"created_at" json:"timestamp"`
	Read       bool       `db:"read" json:"read"`
}

// NewMessageEvent is the payload of the new_message live event.
type NewMessageEvent struct {
	ChatID  string  `json:"chatId"`
	Message Message `json:"message"`
}
