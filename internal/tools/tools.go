// Package tools implements the call-outs the assistant can invoke. Every
// tool returns text meant to be read back to the user, errors included.
package tools

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultWeatherURL = "https://wttr.in"
	DefaultSearchURL  = "https://api.duckduckgo.com"

	maxBody      = 1 << 20
	maxTopics    = 3
	toolDeadline = 15 * time.Second
)

type Option func(*Client)

func WithWeatherURL(u string) Option {
	return func(c *Client) { c.weatherURL = strings.TrimRight(u, "/") }
}

func WithSearchURL(u string) Option {
	return func(c *Client) { c.searchURL = strings.TrimRight(u, "/") }
}

type Client struct {
	http       *http.Client
	weatherURL string
	searchURL  string
}

func New(client *http.Client, opts ...Option) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{
		http:       client,
		weatherURL: DefaultWeatherURL,
		searchURL:  DefaultSearchURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Weather returns a one-line report such as "Delhi: ☀️ +31°C".
func (c *Client) Weather(ctx context.Context, city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return "No city given for the weather lookup."
	}

	u := fmt.Sprintf("%s/%s?format=3", c.weatherURL, url.PathEscape(city))
	status, body, err := c.get(ctx, u)
	if err != nil {
		log.Error("Failed to get weather", "city", city, "err", err)
		return fmt.Sprintf("Error getting weather for %s: %v", city, err)
	}
	if status != http.StatusOK {
		log.Error("Failed to get weather", "city", city, "status", status)
		return fmt.Sprintf("Failed to get weather for %s: %d", city, status)
	}

	report := strings.TrimSpace(string(body))
	log.Info("Weather", "city", city, "report", report)
	return report
}

// Search queries the DuckDuckGo instant answer API and summarises the
// abstract, direct answer and the first related topics.
func (c *Client) Search(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "No search query given."
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	status, body, err := c.get(ctx, c.searchURL+"/?"+q.Encode())
	if err != nil || status != http.StatusOK {
		log.Error("Failed to search the web", "query", query, "status", status, "err", err)
		return fmt.Sprintf("An error occurred while searching the web for '%s'.", query)
	}

	summary := summarise(body)
	if summary == "" {
		return fmt.Sprintf("No results found for '%s'.", query)
	}
	log.Info("Search results", "query", query, "chars", len(summary))
	return summary
}

func summarise(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	root := gjson.ParseBytes(body)

	var parts []string
	for _, path := range []string{"Answer", "AbstractText", "Definition"} {
		if s := strings.TrimSpace(root.Get(path).String()); s != "" {
			parts = append(parts, s)
		}
	}

	n := 0
	root.Get("RelatedTopics.#.Text").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			parts = append(parts, s)
			n++
		}
		return n < maxTopics
	})

	return strings.Join(parts, "\n")
}

func (c *Client) get(ctx context.Context, u string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, toolDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", "curl/8")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
