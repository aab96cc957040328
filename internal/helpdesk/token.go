package helpdesk

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/spec-kit/rumi-monitor/internal/governor"
)

// TokenStrategy is one named way of discovering the anti-forgery token.
type TokenStrategy struct {
	Name   string
	Lookup func(ctx context.Context) (string, error)
}

// TokenResolver evaluates strategies in order; the first non-empty token
// wins and is kept until Invalidate.
type TokenResolver struct {
	strategies []TokenStrategy
	logger     *zap.Logger

	mu     sync.Mutex
	cached string
}

// NewTokenResolver builds a resolver over the given strategies.
func NewTokenResolver(logger *zap.Logger, strategies ...TokenStrategy) *TokenResolver {
	return &TokenResolver{strategies: strategies, logger: logger}
}

// Resolve returns a token or "" when every strategy came up empty.
func (r *TokenResolver) Resolve(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != "" {
		return r.cached
	}
	ctx = withPageCache(ctx)
	for _, s := range r.strategies {
		token, err := s.Lookup(ctx)
		if err != nil {
			r.logger.Debug("token strategy failed", zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if token = strings.TrimSpace(token); token != "" {
			r.logger.Debug("anti-forgery token found", zap.String("strategy", s.Name))
			r.cached = token
			return token
		}
	}
	return ""
}

type pageCacheKey struct{}

// pageCache holds agent pages fetched during one Resolve.
type pageCache struct {
	pages map[string]pageResult
}

type pageResult struct {
	body string
	err  error
}

func withPageCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, pageCacheKey{}, &pageCache{pages: map[string]pageResult{}})
}

// cachedPage fetches path at most once per Resolve; outside one it always fetches.
func cachedPage(ctx context.Context, path string, fetch func(context.Context, string) (string, error)) (string, error) {
	cache, _ := ctx.Value(pageCacheKey{}).(*pageCache)
	if cache == nil {
		return fetch(ctx, path)
	}
	if r, ok := cache.pages[path]; ok {
		return r.body, r.err
	}
	body, err := fetch(ctx, path)
	cache.pages[path] = pageResult{body: body, err: err}
	return body, err
}

// Invalidate drops the cached token, e.g. after a 403 on a write.
func (r *TokenResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = ""
}

// Names lists strategy names in evaluation order.
func (r *TokenResolver) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name)
	}
	return names
}

// DefaultTokenStrategies: page metadata, configured global, inline script.
func DefaultTokenStrategies(c *Client, cfg Config) []TokenStrategy {
	pagePath := cfg.AgentPagePath
	if pagePath == "" {
		pagePath = "/agent"
	}
	static := cfg.CSRFToken
	return []TokenStrategy{
		{Name: "page-metadata", Lookup: func(ctx context.Context) (string, error) {
			page, err := cachedPage(ctx, pagePath, c.fetchPage)
			if err != nil {
				return "", err
			}
			return MetaToken(page)
		}},
		{Name: "global-variable", Lookup: func(context.Context) (string, error) {
			return static, nil
		}},
		{Name: "inline-script", Lookup: func(ctx context.Context) (string, error) {
			page, err := cachedPage(ctx, pagePath, c.fetchPage)
			if err != nil {
				return "", err
			}
			return InlineScriptToken(page)
		}},
	}
}

// MetaToken returns the content of <meta name="csrf-token">.
func MetaToken(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					name = a.Val
				case "content":
					content = a.Val
				}
			}
			if strings.EqualFold(name, "csrf-token") {
				found = content
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return found, nil
}

var inlineTokenPattern = regexp.MustCompile(`(?i)csrf[_-]?token["']?\s*[:=]\s*["']([^"']+)["']`)

// InlineScriptToken scans inline <script> bodies for a csrf token assignment.
func InlineScriptToken(page string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(page))
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return "", nil
			}
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			inScript = string(name) == "script"
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			if m := inlineTokenPattern.FindSubmatch(z.Text()); m != nil {
				return string(m[1]), nil
			}
		}
	}
}

// fetchPage loads an HTML page through the governor. Failures count toward
// the breaker like any other call.
func (c *Client) fetchPage(ctx context.Context, path string) (string, error) {
	if err := c.acquire(ctx, path); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(governor.FailureServer, RequestOptions{})
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.recordFailure(governor.ClassifyStatus(resp.StatusCode), RequestOptions{})
		return "", fmt.Errorf("agent page returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		c.recordFailure(governor.FailureServer, RequestOptions{})
		return "", err
	}
	c.governor.RecordSuccess()
	return string(body), nil
}

func basicAuth(user, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+secret))
}
