package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"", DefaultTemperature},
		{"null", DefaultTemperature},
		{"0.2", 0.2},
		{`"1.1"`, 1.1},
		{"0", 0},
		{"hot", DefaultTemperature},
		{"-1", DefaultTemperature},
		{"3.5", DefaultTemperature},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ParseTemperature(tt.raw), 1e-9, "raw=%q", tt.raw)
	}
}

func TestVerdictResolveKind_Precedence(t *testing.T) {
	all := Verdict{ImageGeneration: true, FileIntent: true, CodeIntent: true, CodeStructure: true, InternetSearch: true}
	assert.Equal(t, VerdictImage, all.ResolveKind())

	all.ImageGeneration = false
	assert.Equal(t, VerdictFile, all.ResolveKind())

	all.FileIntent = false
	assert.Equal(t, VerdictCode, all.ResolveKind())

	all.CodeIntent = false
	assert.Equal(t, VerdictStructure, all.ResolveKind())

	all.CodeStructure = false
	assert.Equal(t, VerdictSearch, all.ResolveKind())

	all.InternetSearch = false
	assert.Equal(t, VerdictNone, all.ResolveKind())
	assert.Equal(t, VerdictNone, DefaultVerdict().Kind)
}

func TestNewChatResponse_NeverNullTranscript(t *testing.T) {
	resp := NewChatResponse(&ChatResult{Reply: "hi"})
	assert.NotNil(t, resp.Conversation)
	assert.Equal(t, "hi", resp.AssistantReply)
}
