package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/choraleia/parlance/pkg/db"
	"github.com/choraleia/parlance/pkg/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type completionCall struct {
	msgs []models.PromptMessage
	opts CompletionOptions
}

// fakeProvider answers classifier calls with classifyReply and every other
// completion with reply.
type fakeProvider struct {
	mu sync.Mutex

	classifyReply string
	classifyErr   error
	reply         string
	replyErr      error
	imageURL      string
	imageErr      error

	classifyCalls []completionCall
	completeCalls []completionCall
	imagePrompts  []string
}

func isClassifierCall(msgs []models.PromptMessage) bool {
	return len(msgs) > 0 && strings.HasPrefix(msgs[0].Content, classifierInstruction)
}

func (p *fakeProvider) Complete(ctx context.Context, msgs []models.PromptMessage, opts CompletionOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := completionCall{msgs: append([]models.PromptMessage(nil), msgs...), opts: opts}
	if isClassifierCall(msgs) {
		p.classifyCalls = append(p.classifyCalls, call)
		return p.classifyReply, p.classifyErr
	}
	p.completeCalls = append(p.completeCalls, call)
	return p.reply, p.replyErr
}

func (p *fakeProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imagePrompts = append(p.imagePrompts, prompt)
	return p.imageURL, p.imageErr
}

func (p *fakeProvider) lastCompletion() completionCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.completeCalls) == 0 {
		return completionCall{}
	}
	return p.completeCalls[len(p.completeCalls)-1]
}

type fakeSearcher struct {
	excerpt string
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, history []models.PromptMessage) (string, error) {
	f.queries = append(f.queries, query)
	return f.excerpt, f.err
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Open(db.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	return database
}
