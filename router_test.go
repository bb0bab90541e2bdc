package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/db"
	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/service"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers classifier calls (max_tokens 300) with verdict
// and all other completions with reply.
type scriptedProvider struct {
	mu      sync.Mutex
	verdict string
	reply   string
}

func (p *scriptedProvider) Complete(ctx context.Context, msgs []models.PromptMessage, opts service.CompletionOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if opts.MaxTokens == 300 {
		return p.verdict, nil
	}
	return p.reply, nil
}

func (p *scriptedProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not configured")
}

type downSearcher struct{}

func (downSearcher) Search(ctx context.Context, query string, history []models.PromptMessage) (string, error) {
	return "", errors.New("search unavailable")
}

func newTestServer(t *testing.T) (*Server, *scriptedProvider) {
	t.Helper()
	dir := t.TempDir()

	database, err := db.Open(db.Config{Driver: "sqlite", DSN: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })

	files, err := service.NewDiskFileStore(database, filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	sessions := service.NewDBSessionStore(database, time.Hour)
	provider := &scriptedProvider{verdict: `{}`, reply: "Hello! How can I help?"}

	chat := service.NewChatService(service.ChatDependencies{
		Chats:     service.NewGormChatStore(database),
		Files:     files,
		Sessions:  sessions,
		Extractor: service.NewContentExtractor(),
		Searcher:  downSearcher{},
		Provider:  provider,
		Corpus:    service.NewFSCodeCorpus(dir),
	}, service.ChatOptions{DefaultModel: "gpt-4o"})

	cfg := &config.AppConfig{Session: config.SessionConfig{MaxAge: time.Hour}}
	return NewServer(cfg, &App{ChatService: chat, Sessions: sessions}), provider
}

type client struct {
	t       *testing.T
	srv     *Server
	cookies []*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.srv.ginEngine.ServeHTTP(rec, req)
	if cks := rec.Result().Cookies(); len(cks) > 0 {
		c.cookies = cks
	}
	return rec
}

func (c *client) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestChat_HelloScenario(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{t: t, srv: srv}

	rec := c.postJSON("/api/chat", `{"message": "Hello", "model": "gpt-4o", "temperature": 0.7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, c.cookies)

	resp := decode[models.ChatResponse](t, rec)
	assert.NotEmpty(t, resp.AssistantReply)
	assert.Equal(t, "Hello", resp.UserMessage)

	rec = c.get("/api/conversations")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.ConversationListResponse](t, rec)
	require.Len(t, list.Conversations, 1)

	rec = c.get(fmt.Sprintf("/api/conversations/%d", list.Conversations[0].ID))
	require.Equal(t, http.StatusOK, rec.Code)
	transcript := decode[models.TranscriptResponse](t, rec)
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, models.RoleUser, transcript.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, transcript.Messages[1].Role)
}

func TestChat_ValidationFailure(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{t: t, srv: srv}

	rec := c.postJSON("/api/chat", `{"message": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")

	rec = c.get("/api/conversations")
	list := decode[models.ConversationListResponse](t, rec)
	assert.Empty(t, list.Conversations)
}

func TestChat_SessionIsolation(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := &client{t: t, srv: srv}
	bob := &client{t: t, srv: srv}

	resp := decode[models.ChatResponse](t, alice.postJSON("/api/chat", `{"message": "my secret"}`))
	path := fmt.Sprintf("/api/conversations/%d", resp.ConversationID)

	assert.Equal(t, http.StatusOK, alice.get(path).Code)
	assert.Equal(t, http.StatusForbidden, bob.get(path).Code)
	assert.Equal(t, http.StatusNotFound, bob.get("/api/conversations/424242").Code)

	rec := bob.postJSON("/api/chat", fmt.Sprintf(`{"message": "hi", "conversation_id": "%d"}`, resp.ConversationID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	list := decode[models.ConversationListResponse](t, bob.get("/api/conversations"))
	assert.Empty(t, list.Conversations)
}

func TestChat_MultipartUploadAndRetrieval(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := &client{t: t, srv: srv}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("message", "what is in this file?"))
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("buy oat milk"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := alice.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[models.ChatResponse](t, rec)
	require.NotNil(t, resp.File)
	assert.True(t, strings.HasPrefix(resp.File.FileURL, "/api/uploads/"))

	rec = alice.get(resp.File.FileURL)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buy oat milk", rec.Body.String())

	bob := &client{t: t, srv: srv}
	rec = bob.get(resp.File.FileURL)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_SearchFailureStillSucceeds(t *testing.T) {
	srv, provider := newTestServer(t)
	provider.verdict = `{"internet_search": true}`
	c := &client{t: t, srv: srv}

	rec := c.postJSON("/api/chat", `{"message": "what happened today?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.ChatResponse](t, rec)
	assert.Equal(t, service.ReplySearchFailed, resp.AssistantReply)
	assert.Len(t, resp.Conversation, 2)
}

func TestNewConversation_Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &client{t: t, srv: srv}

	first := decode[models.ChatResponse](t, c.postJSON("/api/chat", `{"message": "thread one"}`))

	rec := c.postJSON("/api/conversations/new", `{"title": "Fresh start"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[models.Conversation](t, rec)
	assert.Equal(t, "Fresh start", conv.Title)

	second := decode[models.ChatResponse](t, c.postJSON("/api/chat", `{"message": "thread two"}`))
	assert.Equal(t, conv.ID, second.ConversationID)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.ginEngine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/runtime", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.ginEngine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRuntimeInfo(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ginEngine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runtime", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	info := decode[models.RuntimeInfo](t, rec)
	assert.Equal(t, srv.cfg.Port(), info.Port)
}
