package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/utils"
	"github.com/goccy/go-json"
)

const (
	classifierTemperature = 0
	classifierMaxTokens   = 300
	classifierHistory     = 5
)

const classifierInstruction = `You route chat messages for an assistant. Reply with one JSON object and nothing else:
{
  "image_generation": bool,  // the user asks to create, draw or generate a picture
  "image_prompt": string,    // description to render when image_generation is true, else ""
  "internet_search": bool,   // answering needs current or external information from the web, or the message is a URL
  "file_intent": bool,       // the user refers to an uploaded file
  "file_id": string,         // id of the referenced file when known, else ""
  "code_intent": bool,       // the user asks about this application's source code
  "code_structure": bool,    // the user asks for a diagram or overview of the codebase structure
  "number_range": [int]      // legacy field, always []
}
Set at most one of the boolean fields to true.`

var fileRefPattern = regexp.MustCompile(`FILE:(\d+)`)

type rawVerdict struct {
	ImageGeneration bool   `json:"image_generation"`
	ImagePrompt     string `json:"image_prompt"`
	InternetSearch  bool   `json:"internet_search"`
	FileIntent      bool   `json:"file_intent"`
	FileID          any    `json:"file_id"`
	CodeIntent      bool   `json:"code_intent"`
	CodeStructure   bool   `json:"code_structure"`
	NumberRange     []any  `json:"number_range"`
}

// IntentClassifier maps a message to a Verdict with one completion call.
type IntentClassifier struct {
	provider CompletionProvider
	model    string
	logger   *slog.Logger
}

func NewIntentClassifier(provider CompletionProvider, model string) *IntentClassifier {
	return &IntentClassifier{
		provider: provider,
		model:    model,
		logger:   utils.GetLogger(),
	}
}

// Classify never fails: provider or parse errors yield DefaultVerdict.
func (c *IntentClassifier) Classify(ctx context.Context, input string, recent []models.PromptMessage, knownFileIDs []uint) models.Verdict {
	msgs := c.buildPrompt(input, recent, knownFileIDs)

	out, err := c.provider.Complete(ctx, msgs, CompletionOptions{
		Model:       c.model,
		Temperature: classifierTemperature,
		MaxTokens:   classifierMaxTokens,
	})
	if err != nil {
		c.logger.Warn("Failed to classify message", "error", err)
		return models.DefaultVerdict()
	}

	v, err := ParseVerdict(out, input)
	if err != nil {
		c.logger.Warn("Failed to parse classifier output", "error", err, "output", truncateForLog(out, 200))
		return models.DefaultVerdict()
	}
	return v
}

func (c *IntentClassifier) buildPrompt(input string, recent []models.PromptMessage, knownFileIDs []uint) []models.PromptMessage {
	system := classifierInstruction
	if len(knownFileIDs) > 0 {
		ids := make([]string, len(knownFileIDs))
		for i, id := range knownFileIDs {
			ids[i] = strconv.FormatUint(uint64(id), 10)
		}
		system += "\nFiles uploaded in this session have ids: " + strings.Join(ids, ", ") + "."
	}

	msgs := []models.PromptMessage{{Role: models.RoleSystem, Content: system}}
	var turns []models.PromptMessage
	for _, m := range recent {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) > classifierHistory {
		turns = turns[len(turns)-classifierHistory:]
	}
	msgs = append(msgs, turns...)
	return append(msgs, models.PromptMessage{Role: models.RoleUser, Content: input})
}

// ParseVerdict decodes classifier output, optionally wrapped in a markdown
// fence. With file intent, an inline FILE:<digits> in input wins over the
// model's file_id.
func ParseVerdict(output, input string) (models.Verdict, error) {
	var raw rawVerdict
	if err := json.Unmarshal([]byte(stripCodeFence(output)), &raw); err != nil {
		return models.Verdict{}, fmt.Errorf("invalid verdict json: %w", err)
	}

	v := models.Verdict{
		ImageGeneration: raw.ImageGeneration,
		ImagePrompt:     strings.TrimSpace(raw.ImagePrompt),
		InternetSearch:  raw.InternetSearch,
		FileIntent:      raw.FileIntent,
		FileID:          fileIDString(raw.FileID),
		CodeIntent:      raw.CodeIntent,
		CodeStructure:   raw.CodeStructure,
		NumberRange:     []int{},
	}
	for _, n := range raw.NumberRange {
		if f, ok := n.(float64); ok {
			v.NumberRange = append(v.NumberRange, int(f))
		}
	}
	if v.FileIntent {
		if m := fileRefPattern.FindStringSubmatch(input); m != nil {
			v.FileID = m[1]
		}
	}
	v.Kind = v.ResolveKind()
	return v, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line, e.g. ```json
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func fileIDString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimPrefix(strings.TrimSpace(id), "FILE:")
	case float64:
		if id < 0 {
			return ""
		}
		return strconv.FormatUint(uint64(id), 10)
	default:
		return ""
	}
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
