package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/choraleia/parlance/pkg/db"
	"gorm.io/gorm"
)

// ConversationStore persists conversations and their ordered messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, sessionID, title string) (*db.Conversation, error)
	GetConversation(ctx context.Context, id uint) (*db.Conversation, error)
	ListMessages(ctx context.Context, conversationID uint) ([]db.Message, error)
	AppendMessages(ctx context.Context, conversationID uint, msgs ...db.Message) error
	ListRecentConversations(ctx context.Context, sessionID string, limit int) ([]db.Conversation, error)
}

// GormChatStore implements ConversationStore on gorm.
type GormChatStore struct {
	db *gorm.DB
}

func NewGormChatStore(database *gorm.DB) *GormChatStore {
	return &GormChatStore{db: database}
}

func (s *GormChatStore) CreateConversation(ctx context.Context, sessionID, title string) (*db.Conversation, error) {
	if title == "" {
		title = "New Chat"
	}
	conv := &db.Conversation{SessionID: sessionID, Title: title}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *GormChatStore) GetConversation(ctx context.Context, id uint) (*db.Conversation, error) {
	var conv db.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListMessages returns messages oldest first; id breaks timestamp ties.
func (s *GormChatStore) ListMessages(ctx context.Context, conversationID uint) ([]db.Message, error) {
	var msgs []db.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// AppendMessages inserts msgs in order within one transaction and bumps the
// conversation's updated_at.
func (s *GormChatStore) AppendMessages(ctx context.Context, conversationID uint, msgs ...db.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range msgs {
			m := msgs[i]
			m.ID = 0
			m.ConversationID = conversationID
			if m.CreatedAt.IsZero() {
				// strictly increasing within a batch
				m.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("failed to save %s message: %w", m.Role, err)
			}
		}
		return tx.Model(&db.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", now).Error
	})
}

// ListRecentConversations returns the session's conversations, most recently created first.
func (s *GormChatStore) ListRecentConversations(ctx context.Context, sessionID string, limit int) ([]db.Conversation, error) {
	var convs []db.Conversation
	query := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}
