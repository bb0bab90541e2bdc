package service

import (
	"strings"
	"testing"

	"github.com/choraleia/parlance/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConversation() []models.PromptMessage {
	return []models.PromptMessage{
		{Role: models.RoleSystem, Content: "You are a helpful assistant."},
		{Role: models.RoleUser, Content: strings.Repeat("alpha ", 40)},
		{Role: models.RoleAssistant, Content: strings.Repeat("beta ", 40)},
		{Role: models.RoleUser, Content: "What is the capital of France?"},
	}
}

func TestTrim_KeepsEverythingUnderBudget(t *testing.T) {
	tr := NewTrimmer()
	msgs := sampleConversation()

	got := tr.Trim("gpt-4o", msgs, 100000)
	assert.Equal(t, msgs, got)
}

func TestTrim_NeverEmpty(t *testing.T) {
	tr := NewTrimmer()
	msgs := sampleConversation()

	for _, budget := range []int{0, 1, 5} {
		got := tr.Trim("gpt-4o", msgs, budget)
		require.Len(t, got, 1, "budget %d", budget)
		assert.Equal(t, msgs[len(msgs)-1], got[0])
	}
	assert.Empty(t, tr.Trim("gpt-4o", nil, 10))
}

func TestTrim_Idempotent(t *testing.T) {
	tr := NewTrimmer()
	msgs := sampleConversation()

	for _, budget := range []int{0, 10, 30, 60, 120, 1000} {
		once := tr.Trim("gpt-4o", msgs, budget)
		twice := tr.Trim("gpt-4o", once, budget)
		assert.Equal(t, once, twice, "budget %d", budget)
	}
}

func TestTrim_PreservesSuffixOrder(t *testing.T) {
	tr := NewTrimmer()
	msgs := sampleConversation()

	last := tr.CountTokens("gpt-4o", "user: "+msgs[3].Content)
	prev := tr.CountTokens("gpt-4o", "assistant: "+msgs[2].Content)

	// Exactly at the budget the older message is included.
	got := tr.Trim("gpt-4o", msgs, last+prev)
	require.Len(t, got, 2)
	assert.Equal(t, msgs[2:], got)

	got = tr.Trim("gpt-4o", msgs, last+prev-1)
	assert.Equal(t, msgs[3:], got)
}

func TestTrim_DoesNotAliasInput(t *testing.T) {
	tr := NewTrimmer()
	msgs := sampleConversation()

	got := tr.Trim("gpt-4o", msgs, 100000)
	got[0].Content = "changed"
	assert.Equal(t, "You are a helpful assistant.", msgs[0].Content)
}

func TestTrim_UnknownModelFallsBack(t *testing.T) {
	tr := NewTrimmer()
	assert.Positive(t, tr.CountTokens("some-local-model", "hello world"))
}
