// Database models for chat conversations
package db

import "time"

// Conversation is a titled chat thread owned by exactly one session.
type Conversation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"-" gorm:"index;size:100;not null"`
	Title     string    `json:"title" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Session is the server-side record behind an opaque session cookie.
type Session struct {
	ID                   string    `json:"id" gorm:"primaryKey;size:100"`
	ActiveConversationID uint      `json:"active_conversation_id" gorm:"default:0"`
	CreatedAt            time.Time `json:"created_at"`
	LastSeenAt           time.Time `json:"last_seen_at"`
}

func (Session) TableName() string {
	return "sessions"
}
