// Chat HTTP handlers
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// maxUploadBytes caps a single attached file.
const maxUploadBytes = 32 << 20

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)

	conversations := r.Group("/conversations")
	{
		conversations.GET("", h.ListConversations)
		conversations.POST("/new", h.NewConversation)
		conversations.GET("/:id", h.GetConversation)
	}

	r.GET("/uploads/:filename", h.GetUpload)
}

// chatRequest is the JSON form of POST /api/chat. Temperature and
// conversation_id arrive as numbers or numeric strings.
type chatRequest struct {
	Message        string          `json:"message"`
	Model          string          `json:"model"`
	Temperature    json.RawMessage `json:"temperature"`
	SystemPrompt   string          `json:"system_prompt"`
	ConversationID json.RawMessage `json:"conversation_id"`
}

// Chat runs one chat turn.
// POST /api/chat (application/json or multipart/form-data with a "file" part)
func (h *ChatHandler) Chat(c *gin.Context) {
	in, err := parseChatInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.chatService.HandleChat(c.Request.Context(), SessionFrom(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewChatResponse(result))
}

func parseChatInput(c *gin.Context) (models.ChatInput, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return parseMultipartInput(c)
	}

	var req chatRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return models.ChatInput{}, service.ErrValidation
		}
		return models.ChatInput{}, err
	}
	convID, err := parseID(string(req.ConversationID))
	if err != nil {
		return models.ChatInput{}, errors.New("invalid conversation_id")
	}
	return models.ChatInput{
		Message:        req.Message,
		Model:          req.Model,
		Temperature:    models.ParseTemperature(string(req.Temperature)),
		SystemPrompt:   req.SystemPrompt,
		ConversationID: convID,
	}, nil
}

func parseMultipartInput(c *gin.Context) (models.ChatInput, error) {
	convID, err := parseID(c.PostForm("conversation_id"))
	if err != nil {
		return models.ChatInput{}, errors.New("invalid conversation_id")
	}
	in := models.ChatInput{
		Message:        c.PostForm("message"),
		Model:          c.PostForm("model"),
		Temperature:    models.ParseTemperature(c.PostForm("temperature")),
		SystemPrompt:   c.PostForm("system_prompt"),
		ConversationID: convID,
	}

	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, err
	}
	if header.Size > maxUploadBytes {
		return in, errors.New("file too large")
	}
	f, err := header.Open()
	if err != nil {
		return in, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return in, err
	}
	in.File = &models.FileUpload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}
	return in, nil
}

// parseID accepts "", null, a number or a quoted number.
func parseID(raw string) (uint, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" || raw == "null" || raw == "0" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// ListConversations lists the session's recent conversations
// GET /api/conversations?limit=20
func (h *ChatHandler) ListConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	convs, err := h.chatService.ListConversations(c.Request.Context(), SessionFrom(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ConversationListResponse{Conversations: convs})
}

// GetConversation returns one conversation with its transcript
// GET /api/conversations/:id
func (h *ChatHandler) GetConversation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	conv, msgs, err := h.chatService.GetTranscript(c.Request.Context(), SessionFrom(c), uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TranscriptResponse{Conversation: *conv, Messages: msgs})
}

// NewConversation starts a new thread for the session
// POST /api/conversations/new
func (h *ChatHandler) NewConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conv, err := h.chatService.NewConversation(c.Request.Context(), SessionFrom(c), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// GetUpload serves a stored file to the session that uploaded it
// GET /api/uploads/:filename
func (h *ChatHandler) GetUpload(c *gin.Context) {
	rec, path, err := h.chatService.OpenUpload(c.Request.Context(), SessionFrom(c), c.Param("filename"))
	if err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.String(http.StatusNotFound, "Not found")
			return
		}
		c.String(http.StatusInternalServerError, "Internal error")
		return
	}
	if rec.MimeType != "" {
		c.Header("Content-Type", rec.MimeType)
	}
	c.Header("Content-Disposition", "inline; filename=\""+strings.ReplaceAll(rec.OriginalFilename, "\"", "")+"\"")
	c.File(path)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNoSession):
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
