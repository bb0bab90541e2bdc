package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitiveString(t *testing.T) {
	assert.Equal(t, "", MaskSensitiveString(""))
	assert.Equal(t, "*****", MaskSensitiveString("short"))
	assert.Equal(t, "sk-a****wxyz", MaskSensitiveString("sk-a1234wxyz"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestInitLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := InitLogger(LogOptions{Level: "debug", Format: "json", Output: &buf})
	l.Debug("hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
	assert.Same(t, l, GetLogger())
}
