package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/models"
	"github.com/choraleia/parlance/pkg/utils"
	"github.com/goccy/go-json"
	"golang.org/x/net/html"
)

const (
	maxPageBytes   = 2 << 20
	rewriteHistory = 4
	userAgent      = "Mozilla/5.0 (compatible; parlance/1.0)"
)

var (
	ErrSearchNotConfigured = errors.New("web search is not configured")
	ErrNoSearchResults     = errors.New("no search results")
)

const rewriteInstruction = "Rewrite the user's latest message as a short web search query. " +
	"Use the conversation only to resolve references. Reply with the query text only."

// WebSearcher returns plain-text excerpts relevant to query.
type WebSearcher interface {
	Search(ctx context.Context, query string, history []models.PromptMessage) (string, error)
}

// GoogleSearcher queries Google Custom Search and reads the top result pages.
type GoogleSearcher struct {
	cfg      config.SearchConfig
	provider CompletionProvider
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewGoogleSearcher builds a searcher. provider may be nil, in which case
// queries are sent unchanged.
func NewGoogleSearcher(cfg config.SearchConfig, provider CompletionProvider, rewriteModel string) *GoogleSearcher {
	return &GoogleSearcher{
		cfg:      cfg,
		provider: provider,
		model:    rewriteModel,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   utils.GetLogger(),
	}
}

func (s *GoogleSearcher) Search(ctx context.Context, query string, history []models.PromptMessage) (string, error) {
	query = strings.TrimSpace(query)
	if u, ok := directURL(query); ok {
		text, err := s.fetchText(ctx, u)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", fmt.Errorf("no readable text at %s", u)
		}
		return fmt.Sprintf("Content from %s:\n%s", u, text), nil
	}

	if s.cfg.APIKey == "" || s.cfg.EngineID == "" {
		return "", ErrSearchNotConfigured
	}

	q := s.rewriteQuery(ctx, query, history)
	results, err := s.query(ctx, q)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", ErrNoSearchResults
	}

	var sb strings.Builder
	for i, r := range results {
		if i >= s.maxResults() {
			break
		}
		text, err := s.fetchText(ctx, r.Link)
		if err != nil || text == "" {
			s.logger.Debug("Falling back to snippet", "url", r.Link, "error", err)
			text = r.Snippet
		}
		fmt.Fprintf(&sb, "Source: %s\nTitle: %s\n%s\n\n", r.Link, r.Title, text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (s *GoogleSearcher) maxResults() int {
	if s.cfg.MaxResults > 0 {
		return s.cfg.MaxResults
	}
	return 2
}

func (s *GoogleSearcher) rewriteQuery(ctx context.Context, query string, history []models.PromptMessage) string {
	if s.provider == nil {
		return query
	}
	msgs := []models.PromptMessage{{Role: models.RoleSystem, Content: rewriteInstruction}}
	if len(history) > rewriteHistory {
		history = history[len(history)-rewriteHistory:]
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, models.PromptMessage{Role: models.RoleUser, Content: query})

	out, err := s.provider.Complete(ctx, msgs, CompletionOptions{Model: s.model, Temperature: 0, MaxTokens: 60})
	if err != nil {
		s.logger.Warn("Failed to rewrite search query", "error", err)
		return query
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return query
	}
	return out
}

type searchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Items []searchResult `json:"items"`
}

func (s *GoogleSearcher) query(ctx context.Context, q string) ([]searchResult, error) {
	params := url.Values{}
	params.Set("key", s.cfg.APIKey)
	params.Set("cx", s.cfg.EngineID)
	params.Set("q", q)
	params.Set("num", strconv.Itoa(s.maxResults()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status %d", resp.StatusCode)
	}
	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return body.Items, nil
}

// fetchText downloads rawURL and returns its paragraph text capped at MaxChars.
func (s *GoogleSearcher) fetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	text, err := paragraphText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return capChars(text, s.cfg.MaxChars), nil
}

// paragraphText joins the text content of every <p> element.
func paragraphText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var paras []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			if t := strings.Join(strings.Fields(nodeText(n)), " "); t != "" {
				paras = append(paras, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(paras, "\n"), nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
		sb.WriteByte(' ')
	}
	return sb.String()
}

func capChars(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// directURL reports whether the whole message is a single http(s) URL.
func directURL(s string) (string, bool) {
	if strings.ContainsAny(s, " \t\n") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}
