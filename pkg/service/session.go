package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/db"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionContext is the per-request identity handed through the chat pipeline.
type SessionContext struct {
	SessionID            string
	ActiveConversationID uint
}

// SessionStore issues opaque session tokens and remembers each session's
// active conversation.
type SessionStore interface {
	// Resolve returns the session for token, or ErrNoSession when it is unknown or expired.
	Resolve(ctx context.Context, token string) (SessionContext, error)
	Create(ctx context.Context) (SessionContext, error)
	SetActiveConversation(ctx context.Context, sessionID string, conversationID uint) error
}

// NewSessionStore picks the backend named in cfg.
func NewSessionStore(cfg config.SessionConfig, database *gorm.DB) (SessionStore, error) {
	switch cfg.Backend {
	case "", "db":
		return NewDBSessionStore(database, cfg.MaxAge), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return NewRedisSessionStore(client, cfg.MaxAge), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}

// ========== gorm backend ==========

type DBSessionStore struct {
	db     *gorm.DB
	maxAge time.Duration
}

func NewDBSessionStore(database *gorm.DB, maxAge time.Duration) *DBSessionStore {
	return &DBSessionStore{db: database, maxAge: maxAge}
}

func (s *DBSessionStore) Resolve(ctx context.Context, token string) (SessionContext, error) {
	if token == "" {
		return SessionContext{}, ErrNoSession
	}
	var sess db.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SessionContext{}, ErrNoSession
		}
		return SessionContext{}, fmt.Errorf("failed to load session: %w", err)
	}
	now := time.Now()
	if s.maxAge > 0 && now.Sub(sess.LastSeenAt) > s.maxAge {
		return SessionContext{}, ErrNoSession
	}
	if err := s.db.WithContext(ctx).Model(&db.Session{}).
		Where("id = ?", sess.ID).
		Update("last_seen_at", now).Error; err != nil {
		return SessionContext{}, fmt.Errorf("failed to touch session: %w", err)
	}
	return SessionContext{SessionID: sess.ID, ActiveConversationID: sess.ActiveConversationID}, nil
}

func (s *DBSessionStore) Create(ctx context.Context) (SessionContext, error) {
	now := time.Now()
	sess := &db.Session{ID: uuid.New().String(), CreatedAt: now, LastSeenAt: now}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return SessionContext{}, fmt.Errorf("failed to create session: %w", err)
	}
	return SessionContext{SessionID: sess.ID}, nil
}

func (s *DBSessionStore) SetActiveConversation(ctx context.Context, sessionID string, conversationID uint) error {
	err := s.db.WithContext(ctx).Model(&db.Session{}).
		Where("id = ?", sessionID).
		Update("active_conversation_id", conversationID).Error
	if err != nil {
		return fmt.Errorf("failed to set active conversation: %w", err)
	}
	return nil
}

// ========== redis backend ==========

const redisSessionPrefix = "parlance:session:"

type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) key(id string) string {
	return redisSessionPrefix + id
}

func (s *RedisSessionStore) Resolve(ctx context.Context, token string) (SessionContext, error) {
	if token == "" {
		return SessionContext{}, ErrNoSession
	}
	vals, err := s.client.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return SessionContext{}, fmt.Errorf("failed to load session: %w", err)
	}
	if len(vals) == 0 {
		return SessionContext{}, ErrNoSession
	}
	sc := SessionContext{SessionID: token}
	if raw := vals["active_conversation_id"]; raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			sc.ActiveConversationID = uint(id)
		}
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, s.key(token), s.ttl)
	}
	return sc, nil
}

func (s *RedisSessionStore) Create(ctx context.Context) (SessionContext, error) {
	id := uuid.New().String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(id), "created_at", time.Now().Unix(), "active_conversation_id", 0)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(id), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return SessionContext{}, fmt.Errorf("failed to create session: %w", err)
	}
	return SessionContext{SessionID: id}, nil
}

func (s *RedisSessionStore) SetActiveConversation(ctx context.Context, sessionID string, conversationID uint) error {
	if err := s.client.HSet(ctx, s.key(sessionID), "active_conversation_id", conversationID).Err(); err != nil {
		return fmt.Errorf("failed to set active conversation: %w", err)
	}
	return nil
}
