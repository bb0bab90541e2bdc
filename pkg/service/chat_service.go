// Chat Service - routes each message to one augmentation path and persists the plain turn
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/choraleia/parlance/pkg/db"
	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/utils"
)

// Replies used when a branch cannot produce a model answer.
const (
	ReplyNoImagePrompt    = "No prompt provided for image generation."
	ReplyImageFailed      = "Error generating image."
	ReplyNoFileID         = "No file ID was provided."
	ReplyFileNotFound     = "The referenced file could not be found."
	ReplyFileGone         = "The referenced file is no longer available."
	ReplyFileUnreadable   = "The referenced file could not be read."
	ReplyNoCode           = "No code files found."
	ReplyStructureFailed  = "Error generating codebase structure diagram."
	ReplySearchFailed     = "I couldn't retrieve information from the internet right now."
	ReplyGenerationFailed = "Error generating response."
)

const (
	attachmentUnreadable   = "The attached file could not be read, so its content is unavailable."
	structureFilename      = "codebase_structure.dot"
	structureMimeType      = "text/vnd.graphviz"
	titleMaxRunes          = 50
	defaultHistoryWindow   = 5
	defaultConversationCap = 20
	maxConversationCap     = 100
)

const formattingInstructions = "Format responses in Markdown. Put code in fenced blocks with a language tag."

const searchInstructions = "The following information was retrieved from the internet for the user's question. " +
	"Answer confidently using it and cite the source URL."

// ChatOptions holds the limits and defaults applied to every turn.
type ChatOptions struct {
	DefaultModel    string
	ClassifierModel string
	WordLimit       int
	MaxPromptTokens int
	HistoryWindow   int
}

// ChatDependencies are the collaborators a ChatService routes between.
type ChatDependencies struct {
	Chats     ConversationStore
	Files     FileStore
	Sessions  SessionStore
	Extractor Extractor
	Searcher  WebSearcher
	Provider  CompletionProvider
	Corpus    CodeCorpus
}

// ChatService handles chat turns and session-scoped conversation access.
type ChatService struct {
	chats      ConversationStore
	files      FileStore
	sessions   SessionStore
	extractor  Extractor
	searcher   WebSearcher
	provider   CompletionProvider
	corpus     CodeCorpus
	classifier *IntentClassifier
	trimmer    *Trimmer
	opts       ChatOptions
	logger     *slog.Logger
}

// NewChatService creates a new chat service
func NewChatService(deps ChatDependencies, opts ChatOptions) *ChatService {
	if opts.DefaultModel == "" {
		opts.DefaultModel = "gpt-4o"
	}
	if opts.ClassifierModel == "" {
		opts.ClassifierModel = opts.DefaultModel
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	if opts.MaxPromptTokens <= 0 {
		opts.MaxPromptTokens = 100000
	}
	return &ChatService{
		chats:      deps.Chats,
		files:      deps.Files,
		sessions:   deps.Sessions,
		extractor:  deps.Extractor,
		searcher:   deps.Searcher,
		provider:   deps.Provider,
		corpus:     deps.Corpus,
		classifier: NewIntentClassifier(deps.Provider, opts.ClassifierModel),
		trimmer:    NewTrimmer(),
		opts:       opts,
		logger:     utils.GetLogger(),
	}
}

// ========== Chat ==========

// turn carries the state of one HandleChat pass.
type turn struct {
	sc          SessionContext
	conv        *db.Conversation
	userMessage string
	attached    *db.UploadedFile
	attachedTxt string
	history     []db.Message
	verdict     models.Verdict

	augmentation string
	reply        string
	answered     bool
	file         *db.UploadedFile
}

// HandleChat runs one chat turn. Only validation, authorization and storage
// errors are returned; provider failures become fixed replies.
func (s *ChatService) HandleChat(ctx context.Context, sc SessionContext, in models.ChatInput) (*models.ChatResult, error) {
	if sc.SessionID == "" {
		return nil, ErrNoSession
	}
	message := strings.TrimSpace(in.Message)
	if message == "" && in.File == nil {
		return nil, ErrValidation
	}

	model := in.Model
	if model == "" {
		model = s.opts.DefaultModel
	}
	systemPrompt := strings.TrimSpace(in.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = models.DefaultSystemPrompt
	}

	t := &turn{sc: sc, userMessage: message}
	if message == "" {
		t.userMessage = "Uploaded file: " + in.File.Name
	}

	conv, err := s.resolveConversation(ctx, sc, in.ConversationID, titleFor(message, in.File))
	if err != nil {
		return nil, err
	}
	t.conv = conv

	if in.File != nil {
		if err := s.attach(ctx, t, in.File); err != nil {
			return nil, err
		}
	}

	t.history, err = s.chats.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	t.verdict = s.classify(ctx, t)
	s.dispatch(ctx, t)

	if !t.answered {
		prompt := buildPrompt(systemPrompt, t.history, t.augmentation, t.userMessage)
		prompt = s.trimmer.Trim(model, prompt, s.opts.MaxPromptTokens)
		reply, err := s.provider.Complete(ctx, prompt, CompletionOptions{Model: model, Temperature: in.Temperature})
		if err != nil {
			s.logger.Warn("Failed to generate response", "conversation_id", conv.ID, "model", model, "error", err)
			reply = ReplyGenerationFailed
		}
		t.reply = reply
	}

	if err := s.chats.AppendMessages(ctx, conv.ID,
		db.Message{Role: models.RoleUser, Content: t.userMessage},
		db.Message{Role: models.RoleAssistant, Content: t.reply},
	); err != nil {
		return nil, err
	}

	if err := s.sessions.SetActiveConversation(ctx, sc.SessionID, conv.ID); err != nil {
		s.logger.Warn("Failed to set active conversation", "session", utils.MaskSensitiveString(sc.SessionID), "error", err)
	}

	transcript, err := s.chats.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	file := t.attached
	if file == nil {
		file = t.file
	}
	return &models.ChatResult{
		UserMessage:    t.userMessage,
		Reply:          t.reply,
		ConversationID: conv.ID,
		Transcript:     transcript,
		Verdict:        t.verdict,
		File:           file,
	}, nil
}

// resolveConversation loads the requested conversation, falls back to the
// session's active one, or lazily creates a new one.
func (s *ChatService) resolveConversation(ctx context.Context, sc SessionContext, requested uint, title string) (*db.Conversation, error) {
	if requested != 0 {
		conv, err := s.chats.GetConversation(ctx, requested)
		if err != nil {
			return nil, err
		}
		if conv.SessionID != sc.SessionID {
			return nil, ErrForbidden
		}
		return conv, nil
	}

	if sc.ActiveConversationID != 0 {
		conv, err := s.chats.GetConversation(ctx, sc.ActiveConversationID)
		switch {
		case err == nil && conv.SessionID == sc.SessionID:
			return conv, nil
		case err != nil && !errors.Is(err, ErrConversationNotFound):
			return nil, err
		}
	}

	return s.chats.CreateConversation(ctx, sc.SessionID, title)
}

func (s *ChatService) attach(ctx context.Context, t *turn, up *models.FileUpload) error {
	rec, err := s.files.Save(ctx, t.sc.SessionID, up.Data, up.Name, up.MimeType)
	if err != nil {
		return err
	}
	t.attached = rec

	text, err := s.extractor.ExtractText(ctx, s.files.Path(rec), rec.MimeType, s.opts.WordLimit)
	if err != nil {
		s.logger.Warn("Failed to extract attached file", "file_id", rec.ID, "mime", rec.MimeType, "error", err)
		text = attachmentUnreadable
	}
	t.attachedTxt = text
	return nil
}

func (s *ChatService) classify(ctx context.Context, t *turn) models.Verdict {
	input := t.userMessage
	if t.attached != nil {
		input += fmt.Sprintf("\n[User attached file FILE:%d (%s)]", t.attached.ID, t.attached.OriginalFilename)
	}

	var known []uint
	files, err := s.files.ListBySession(ctx, t.sc.SessionID)
	if err != nil {
		s.logger.Warn("Failed to list session files", "error", err)
	}
	for _, f := range files {
		known = append(known, f.ID)
	}

	return s.classifier.Classify(ctx, input, recentTurns(t.history, s.opts.HistoryWindow), known)
}

// dispatch runs the branch selected by the verdict. A branch either sets
// t.augmentation for the completion call or answers directly.
func (s *ChatService) dispatch(ctx context.Context, t *turn) {
	switch t.verdict.Kind {
	case models.VerdictImage:
		s.handleImage(ctx, t)
	case models.VerdictFile:
		s.handleFile(ctx, t)
	case models.VerdictCode:
		s.handleCode(ctx, t)
	case models.VerdictStructure:
		s.handleStructure(ctx, t)
	case models.VerdictSearch:
		s.handleSearch(ctx, t)
	case models.VerdictNone:
		if t.attached != nil {
			t.augmentation = fileAugmentation(t.attached, t.attachedTxt)
		}
	}
}

func (t *turn) answer(reply string) {
	t.reply = reply
	t.answered = true
}

func (s *ChatService) handleImage(ctx context.Context, t *turn) {
	prompt := strings.TrimSpace(t.verdict.ImagePrompt)
	if prompt == "" {
		t.answer(ReplyNoImagePrompt)
		return
	}
	url, err := s.provider.GenerateImage(ctx, prompt)
	if err != nil {
		s.logger.Warn("Failed to generate image", "error", err)
		t.answer(ReplyImageFailed)
		return
	}
	t.answer(fmt.Sprintf("![generated image](%s)", url))
}

func (s *ChatService) handleFile(ctx context.Context, t *turn) {
	if t.verdict.FileID == "" {
		if t.attached != nil {
			t.augmentation = fileAugmentation(t.attached, t.attachedTxt)
			return
		}
		t.answer(ReplyNoFileID)
		return
	}

	id, err := strconv.ParseUint(t.verdict.FileID, 10, 64)
	if err != nil {
		t.answer(ReplyFileNotFound)
		return
	}
	if t.attached != nil && uint(id) == t.attached.ID {
		t.augmentation = fileAugmentation(t.attached, t.attachedTxt)
		return
	}

	rec, err := s.files.Get(ctx, uint(id))
	if err != nil || rec.SessionID != t.sc.SessionID {
		if err != nil && !errors.Is(err, ErrFileNotFound) {
			s.logger.Warn("Failed to load referenced file", "file_id", id, "error", err)
		}
		t.answer(ReplyFileNotFound)
		return
	}

	path := s.files.Path(rec)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.files.Delete(ctx, rec.ID); err != nil {
			s.logger.Warn("Failed to delete stale file record", "file_id", rec.ID, "error", err)
		}
		t.answer(ReplyFileGone)
		return
	}

	text, err := s.extractor.ExtractText(ctx, path, rec.MimeType, s.opts.WordLimit)
	if err != nil {
		s.logger.Warn("Failed to extract referenced file", "file_id", rec.ID, "error", err)
		t.answer(ReplyFileUnreadable)
		return
	}
	t.augmentation = fileAugmentation(rec, text)
}

func (s *ChatService) handleCode(ctx context.Context, t *turn) {
	corpus, err := s.corpus.Collect(ctx)
	if err != nil {
		if !errors.Is(err, ErrEmptyCorpus) {
			s.logger.Warn("Failed to collect code corpus", "error", err)
		}
		t.answer(ReplyNoCode)
		return
	}
	t.augmentation = "Source code of this application:\n\n" + corpus
}

func (s *ChatService) handleStructure(ctx context.Context, t *turn) {
	dot, err := s.corpus.Structure(ctx)
	if err != nil {
		s.logger.Warn("Failed to build codebase structure", "error", err)
		t.answer(ReplyStructureFailed)
		return
	}
	rec, err := s.files.Save(ctx, t.sc.SessionID, []byte(dot), structureFilename, structureMimeType)
	if err != nil {
		s.logger.Warn("Failed to store codebase structure", "error", err)
		t.answer(ReplyStructureFailed)
		return
	}
	t.file = rec
	t.answer(fmt.Sprintf("Here is the codebase structure diagram in Graphviz DOT format: [%s](%s)", structureFilename, rec.FileURL))
}

func (s *ChatService) handleSearch(ctx context.Context, t *turn) {
	excerpt, err := s.searcher.Search(ctx, t.userMessage, models.FromMessages(t.history))
	if err != nil {
		s.logger.Warn("Failed to search the web", "error", err)
		t.answer(ReplySearchFailed)
		return
	}
	t.augmentation = searchInstructions + "\n\n" + excerpt
}

// buildPrompt returns a new slice: system, history, the one-shot
// augmentation if any, then the user message.
func buildPrompt(systemPrompt string, history []db.Message, augmentation, userMessage string) []models.PromptMessage {
	prompt := make([]models.PromptMessage, 0, len(history)+3)
	prompt = append(prompt, models.PromptMessage{
		Role:    models.RoleSystem,
		Content: systemPrompt + "\n\n" + formattingInstructions,
	})
	for _, m := range history {
		prompt = append(prompt, models.PromptMessage{Role: m.Role, Content: m.Content})
	}
	if augmentation != "" {
		prompt = append(prompt, models.PromptMessage{Role: models.RoleSystem, Content: augmentation})
	}
	return append(prompt, models.PromptMessage{Role: models.RoleUser, Content: userMessage})
}

func fileAugmentation(f *db.UploadedFile, text string) string {
	return fmt.Sprintf("Content of file FILE:%d (%s):\n\n%s", f.ID, f.OriginalFilename, text)
}

func recentTurns(history []db.Message, n int) []models.PromptMessage {
	var out []models.PromptMessage
	for _, m := range history {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			out = append(out, models.PromptMessage{Role: m.Role, Content: m.Content})
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func titleFor(message string, file *models.FileUpload) string {
	title := message
	if title == "" && file != nil {
		title = file.Name
	}
	title = strings.Join(strings.Fields(title), " ")
	if utf8.RuneCountInString(title) > titleMaxRunes {
		title = string([]rune(title)[:titleMaxRunes])
	}
	return title
}

// ========== Conversation access ==========

// ListConversations returns the session's most recent conversations.
func (s *ChatService) ListConversations(ctx context.Context, sc SessionContext, limit int) ([]db.Conversation, error) {
	if limit <= 0 {
		limit = defaultConversationCap
	}
	if limit > maxConversationCap {
		limit = maxConversationCap
	}
	convs, err := s.chats.ListRecentConversations(ctx, sc.SessionID, limit)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []db.Conversation{}
	}
	return convs, nil
}

// GetTranscript returns a conversation and its messages if sc owns it.
func (s *ChatService) GetTranscript(ctx context.Context, sc SessionContext, id uint) (*db.Conversation, []db.Message, error) {
	conv, err := s.chats.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if conv.SessionID != sc.SessionID {
		return nil, nil, ErrForbidden
	}
	msgs, err := s.chats.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if msgs == nil {
		msgs = []db.Message{}
	}
	return conv, msgs, nil
}

// NewConversation starts an empty thread and makes it the session's active one.
func (s *ChatService) NewConversation(ctx context.Context, sc SessionContext, title string) (*db.Conversation, error) {
	conv, err := s.chats.CreateConversation(ctx, sc.SessionID, titleFor(strings.TrimSpace(title), nil))
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetActiveConversation(ctx, sc.SessionID, conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

// OpenUpload resolves a stored filename for sc. Files of other sessions and
// files missing on disk both report ErrFileNotFound.
func (s *ChatService) OpenUpload(ctx context.Context, sc SessionContext, filename string) (*db.UploadedFile, string, error) {
	rec, err := s.files.GetByFilename(ctx, filename)
	if err != nil {
		return nil, "", err
	}
	if rec.SessionID != sc.SessionID {
		return nil, "", ErrFileNotFound
	}
	path := s.files.Path(rec)
	if _, err := os.Stat(path); err != nil {
		return nil, "", ErrFileNotFound
	}
	return rec, path, nil
}
