package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// spaIndex is the frontend entry page, read once at startup.
type spaIndex struct {
	data    []byte
	etag    string
	modTime time.Time
}

// frontendFS returns the built frontend under dir, or nil when dir is unset
// or has no index.html.
func frontendFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil
	}
	dfs := os.DirFS(dir)
	if _, err := fs.Stat(dfs, "index.html"); err != nil {
		return nil
	}
	return dfs
}

func loadIndex(dist fs.FS) *spaIndex {
	data, err := fs.ReadFile(dist, "index.html")
	if err != nil || len(data) == 0 {
		return nil
	}
	idx := &spaIndex{data: data, modTime: time.Now()}
	if fi, err := fs.Stat(dist, "index.html"); err == nil {
		idx.modTime = fi.ModTime()
	}
	sum := sha256.Sum256(data)
	idx.etag = `W/"` + hex.EncodeToString(sum[:8]) + `"`
	return idx
}

// attachStatic serves the single-page frontend from dir:
//  1. only GET/HEAD outside /api are considered
//  2. an existing file is served and the chain aborted
//  3. an extensionless path from a browser gets index.html
func attachStatic(engine *gin.Engine, dir string) {
	dist := frontendFS(dir)
	if dist == nil {
		return
	}
	index := loadIndex(dist)
	fileServer := http.FileServer(http.FS(dist))

	engine.Use(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api") {
			return
		}
		name := strings.TrimPrefix(p, "/")
		if name == "" {
			index.serve(c)
			return
		}
		if fi, err := fs.Stat(dist, name); err == nil {
			if fi.IsDir() {
				index.serve(c)
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}
		if !strings.Contains(name, ".") && acceptHTML(c.Request.Header.Get("Accept")) {
			index.serve(c)
		}
	})
}

// serveIndexFallback serves index.html for browser navigations that reached
// NoRoute. It reports whether a response was written.
func serveIndexFallback(c *gin.Context, dir string) bool {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		return false
	}
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api") || strings.Contains(strings.TrimPrefix(p, "/"), ".") {
		return false
	}
	if !acceptHTML(c.Request.Header.Get("Accept")) {
		return false
	}
	dist := frontendFS(dir)
	if dist == nil {
		return false
	}
	return loadIndex(dist).serve(c)
}

func (idx *spaIndex) serve(c *gin.Context) bool {
	if idx == nil {
		return false
	}
	if c.Request.Header.Get("If-None-Match") == idx.etag {
		c.Status(http.StatusNotModified)
		c.Abort()
		return true
	}
	c.Header("ETag", idx.etag)
	c.Header("Cache-Control", "no-cache")
	c.Header("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(c.Writer, c.Request, "index.html", idx.modTime, bytes.NewReader(idx.data))
	c.Abort()
	return true
}

// acceptHTML reports whether the Accept header admits an HTML page. A
// missing header counts as a navigation.
func acceptHTML(accept string) bool {
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(p, "text/html") || strings.HasPrefix(p, "application/xhtml+xml") {
			return true
		}
	}
	return false
}
