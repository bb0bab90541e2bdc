// Database models for chat messages and uploads
package db

import "time"

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn half. Rows are read back ordered by
// (created_at, id) so the transcript matches insertion order.
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"index;not null"`
	Role           string    `json:"role" gorm:"size:50;not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (Message) TableName() string {
	return "messages"
}

// UploadedFile records a stored upload. Filename is the storage-unique name on
// disk, OriginalFilename is what the client sent.
type UploadedFile struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	SessionID        string    `json:"-" gorm:"index;size:100;not null"`
	Filename         string    `json:"filename" gorm:"uniqueIndex;size:255;not null"`
	OriginalFilename string    `json:"original_filename" gorm:"size:255;not null"`
	FileURL          string    `json:"file_url" gorm:"size:500;not null"`
	MimeType         string    `json:"mime_type" gorm:"size:100"`
	Size             int64     `json:"size"`
	CreatedAt        time.Time `json:"created_at"`
}

func (UploadedFile) TableName() string {
	return "uploaded_files"
}
