package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	maxCorpusFileBytes  = 100 << 10
	maxCorpusTotalBytes = 400 << 10
	maxStructureDepth   = 5
)

var sourceExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".html": {}, ".css": {}, ".java": {}, ".rs": {}, ".c": {}, ".h": {},
	".cpp": {}, ".rb": {}, ".sh": {}, ".sql": {},
}

var excludedDirs = map[string]struct{}{
	"uploads": {}, ".git": {}, "__pycache__": {}, "node_modules": {}, "venv": {},
}

// CodeCorpus exposes the application's own source for code questions.
type CodeCorpus interface {
	Collect(ctx context.Context) (string, error)
	Structure(ctx context.Context) (string, error)
}

type FSCodeCorpus struct {
	root string
}

func NewFSCodeCorpus(root string) *FSCodeCorpus {
	return &FSCodeCorpus{root: root}
}

func skipDir(name string) bool {
	if _, ok := excludedDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "."
}

// Collect concatenates every source file under root, each headed by its
// relative path. It returns ErrEmptyCorpus when nothing matches.
func (c *FSCodeCorpus) Collect(ctx context.Context) (string, error) {
	var (
		sb    strings.Builder
		count int
	)
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != c.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := sourceExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxCorpusFileBytes {
			return nil
		}
		if sb.Len()+int(info.Size()) > maxCorpusTotalBytes {
			return filepath.SkipAll
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(c.root, path)
		fmt.Fprintf(&sb, "File: %s\n```\n%s\n```\n\n", filepath.ToSlash(rel), strings.TrimRight(string(data), "\n"))
		count++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read code corpus: %w", err)
	}
	if count == 0 {
		return "", ErrEmptyCorpus
	}
	return strings.TrimSpace(sb.String()), nil
}

// Structure renders the directory tree under root as a Graphviz digraph.
func (c *FSCodeCorpus) Structure(ctx context.Context) (string, error) {
	rootName := filepath.Base(filepath.Clean(c.root))
	if rootName == "." || rootName == string(filepath.Separator) {
		if abs, err := filepath.Abs(c.root); err == nil {
			rootName = filepath.Base(abs)
		}
	}

	var edges []string
	nodes := map[string]string{rootName: "folder"}

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == c.root {
			return nil
		}
		rel, _ := filepath.Rel(c.root, path)
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if d.IsDir() && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if depth > maxStructureDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		parent := rootName
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			parent = rootName + "/" + rel[:i]
		}
		id := rootName + "/" + rel
		if d.IsDir() {
			nodes[id] = "folder"
		} else {
			nodes[id] = "note"
		}
		edges = append(edges, fmt.Sprintf("  %q -> %q;", parent, id))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk code root: %w", err)
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("digraph codebase {\n  rankdir=LR;\n  node [fontname=\"Helvetica\"];\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "  %q [label=%q, shape=%s];\n", id, pathBase(id), nodes[id])
	}
	for _, e := range edges {
		sb.WriteString(e + "\n")
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}

func pathBase(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
