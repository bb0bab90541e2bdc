package service

import (
	"sync"

	"github.com/choraleia/parlance/pkg/models"
	"github.com/tiktoken-go/tokenizer"
)

// Trimmer bounds a prompt to a token budget, keeping the most recent messages.
type Trimmer struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

func NewTrimmer() *Trimmer {
	return &Trimmer{codecs: make(map[string]tokenizer.Codec)}
}

// Trim walks msgs newest to oldest and keeps every message whose running
// token total stays within maxTokens. The newest message is always kept.
// The result is a new slice in the original order.
func (t *Trimmer) Trim(model string, msgs []models.PromptMessage, maxTokens int) []models.PromptMessage {
	if len(msgs) == 0 {
		return []models.PromptMessage{}
	}

	codec := t.codecFor(model)
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := countTokens(codec, msgs[i].Role+": "+msgs[i].Content)
		if start < len(msgs) && total+n > maxTokens {
			break
		}
		total += n
		start = i
	}

	out := make([]models.PromptMessage, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}

// CountTokens reports the token count of text under model's encoding.
func (t *Trimmer) CountTokens(model, text string) int {
	return countTokens(t.codecFor(model), text)
}

func (t *Trimmer) codecFor(model string) tokenizer.Codec {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.codecs[model]; ok {
		return c
	}
	c, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		c, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			c = nil
		}
	}
	t.codecs[model] = c
	return c
}

// countTokens falls back to four characters per token without a codec.
func countTokens(codec tokenizer.Codec, text string) int {
	if codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}
