// Chat API types and the transient orchestration verdict
package models

import (
	"strconv"
	"strings"

	"github.com/choraleia/parlance/pkg/db"
)

// ========== Type aliases for database types ==========

type Conversation = db.Conversation
type Message = db.Message
type UploadedFile = db.UploadedFile

// Message roles
const (
	RoleSystem    = db.RoleSystem
	RoleUser      = db.RoleUser
	RoleAssistant = db.RoleAssistant
)

const (
	DefaultTemperature  = 0.7
	DefaultSystemPrompt = "You are a helpful assistant."
)

// PromptMessage is one role-tagged entry of an outgoing prompt.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromMessages converts persisted rows into prompt entries.
func FromMessages(msgs []db.Message) []PromptMessage {
	out := make([]PromptMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, PromptMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// ========== Chat request / response ==========

// FileUpload is a file attached to a chat request.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// ChatInput is the parsed form of POST /api/chat, independent of JSON or multipart.
type ChatInput struct {
	Message        string
	Model          string
	Temperature    float64
	SystemPrompt   string
	ConversationID uint
	File           *FileUpload
}

// ChatResult is what one orchestration pass produces.
type ChatResult struct {
	UserMessage    string
	Reply          string
	ConversationID uint
	Transcript     []db.Message
	Verdict        Verdict
	File           *db.UploadedFile
}

// ChatResponse is the JSON body returned by POST /api/chat.
type ChatResponse struct {
	UserMessage    string           `json:"user_message"`
	AssistantReply string           `json:"assistant_reply"`
	ConversationID uint             `json:"conversation_id"`
	Conversation   []db.Message     `json:"conversation"`
	Verdict        Verdict          `json:"verdict"`
	File           *db.UploadedFile `json:"file,omitempty"`
}

// NewChatResponse maps a ChatResult to its wire form.
func NewChatResponse(r *ChatResult) ChatResponse {
	transcript := r.Transcript
	if transcript == nil {
		transcript = []db.Message{}
	}
	return ChatResponse{
		UserMessage:    r.UserMessage,
		AssistantReply: r.Reply,
		ConversationID: r.ConversationID,
		Conversation:   transcript,
		Verdict:        r.Verdict,
		File:           r.File,
	}
}

// ParseTemperature accepts a number or numeric string and falls back to
// DefaultTemperature for anything unparsable or outside [0, 2].
func ParseTemperature(raw string) float64 {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" || raw == "null" {
		return DefaultTemperature
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 2 {
		return DefaultTemperature
	}
	return v
}

// ========== Conversation API types ==========

// ConversationListResponse is returned by GET /api/conversations.
type ConversationListResponse struct {
	Conversations []db.Conversation `json:"conversations"`
}

// TranscriptResponse is returned by GET /api/conversations/:id.
type TranscriptResponse struct {
	Conversation db.Conversation `json:"conversation"`
	Messages     []db.Message    `json:"messages"`
}

// CreateConversationRequest is the optional body of POST /api/conversations/new.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}
