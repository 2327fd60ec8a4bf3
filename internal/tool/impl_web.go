package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxFetchChars = 15000

func (c *Context) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func implWebSearch(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	query := argString(args, "query")
	tc.Emit("tool.called", map[string]any{"tool": "web_search", "query": query})

	switch {
	case tc.SearchProvider == "brave" && tc.BraveAPIKey != "":
		return braveSearch(ctx, tc, query)
	case tc.SearchProvider == "serper" && tc.SerperAPIKey != "":
		return serperSearch(ctx, tc, query)
	default:
		return "Error: No search API configured. Set a Brave or Serper API key.", nil
	}
}

func braveSearch(ctx context.Context, tc *Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.search.brave.com/res/v1/web/search", nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", "5")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-Subscription-Token", tc.BraveAPIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := tc.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("search: decode: %w", err)
	}
	if len(payload.Web.Results) == 0 {
		return "No results found.", nil
	}

	var parts []string
	for i, r := range payload.Web.Results {
		if i == 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("**%s**\n%s\n%s\n", r.Title, r.URL, r.Description))
	}
	return strings.Join(parts, "\n---\n"), nil
}

func serperSearch(ctx context.Context, tc *Context, query string) (string, error) {
	body, _ := json.Marshal(map[string]any{"q": query, "num": 5})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/search", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-KEY", tc.SerperAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var payload struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("search: decode: %w", err)
	}
	if len(payload.Organic) == 0 {
		return "No results found.", nil
	}

	var parts []string
	for i, r := range payload.Organic {
		if i == 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("**%s**\n%s\n%s\n", r.Title, r.Link, r.Snippet))
	}
	return strings.Join(parts, "\n---\n"), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|nav|footer)[^>]*>.*?</\s*(script|style|nav|footer)\s*>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

func implWebFetch(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	url := argString(args, "url")
	tc.Emit("tool.called", map[string]any{"tool": "web_fetch", "url": url})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "Error: invalid URL: " + url, nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; conclave/1.0)")

	resp, err := tc.httpClient().Do(req)
	if err != nil {
		return "Fetch error: " + err.Error(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Fetch error: status %d", resp.StatusCode), nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "Fetch error: " + err.Error(), nil
	}

	text := scriptRe.ReplaceAllString(string(raw), "")
	text = tagRe.ReplaceAllString(text, "")
	text = blankRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "(empty page)", nil
	}
	return truncateString(text, maxFetchChars), nil
}
