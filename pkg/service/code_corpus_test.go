package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestFSCodeCorpus_Collect(t *testing.T) {
	root := filepath.Join(t.TempDir(), "app")
	writeTree(t, root, map[string]string{
		"main.go":                "package main\n",
		"web/app.js":             "console.log(1)\n",
		"README.md":              "docs",
		"uploads/x.py":           "print('uploaded')",
		"node_modules/lib/a.js":  "ignored",
		".git/hooks/pre-push.sh": "ignored",
	})

	out, err := NewFSCodeCorpus(root).Collect(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "File: main.go\n```\npackage main\n```")
	assert.Contains(t, out, "File: web/app.js")
	assert.NotContains(t, out, "docs")
	assert.NotContains(t, out, "uploaded")
	assert.NotContains(t, out, "ignored")
}

func TestFSCodeCorpus_Empty(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"notes.txt": "hello"})

	_, err := NewFSCodeCorpus(root).Collect(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestFSCodeCorpus_Structure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "app")
	writeTree(t, root, map[string]string{
		"main.go":             "",
		"pkg/service/chat.go": "",
		"a/b/c/d/e/f/deep.go": "",
		"venv/lib/site.py":    "",
	})

	dot, err := NewFSCodeCorpus(root).Structure(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(dot, "digraph codebase {"))
	assert.Contains(t, dot, `"app" -> "app/main.go";`)
	assert.Contains(t, dot, `"app/pkg/service" -> "app/pkg/service/chat.go";`)
	assert.Contains(t, dot, `"app/a/b/c/d/e"`)
	assert.NotContains(t, dot, "app/a/b/c/d/e/f")
	assert.NotContains(t, dot, "venv")
}
