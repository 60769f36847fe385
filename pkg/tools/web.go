package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultSearchURL = "https://html.duckduckgo.com/html/"
	userAgent        = "Mozilla/5.0 (compatible; PointerBot/1.0)"
	maxPageText      = 8000
)

func (e *LocalExecutor) getDocument(ctx context.Context, rawURL string) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, fmt.Errorf("received status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, resp.StatusCode, nil
}

func (e *LocalExecutor) fetchWebpage(ctx context.Context, args map[string]any) (any, error) {
	rawURL := strings.TrimSpace(stringArg(args, "url"))
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("invalid url provided")
	}

	doc, status, err := e.getDocument(ctx, parsed.String())
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	truncated := false
	if r := []rune(text); len(r) > maxPageText {
		text = string(r[:maxPageText]) + "..."
		truncated = true
	}

	return map[string]any{
		"url":         parsed.String(),
		"title":       strings.TrimSpace(doc.Find("title").First().Text()),
		"content":     text,
		"status_code": status,
		"truncated":   truncated,
	}, nil
}

func (e *LocalExecutor) webSearch(ctx context.Context, args map[string]any) (any, error) {
	term := strings.TrimSpace(stringArg(args, "search_term"))
	if term == "" {
		return nil, errors.New("no search term provided")
	}
	limit := intArg(args, "num_results", 3)
	if limit <= 0 || limit > 10 {
		limit = 3
	}

	searchURL := e.searchURL + "?q=" + url.QueryEscape(term)
	doc, _, err := e.getDocument(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]string, 0, limit)
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find(".result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, map[string]string{
			"title":   title,
			"url":     unwrapRedirect(href),
			"snippet": strings.Join(strings.Fields(s.Find(".result__snippet").Text()), " "),
		})
		return len(results) < limit
	})

	return map[string]any{
		"query":   term,
		"results": results,
	}, nil
}

// unwrapRedirect extracts the target of a "/l/?uddg=<url>" redirect link.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
