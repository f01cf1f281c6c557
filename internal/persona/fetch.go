// Package persona fetches the assistant persona from the prompt service
// after a session has started and applies it to the live agent.
package persona

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"friday/internal/metrics"
)

const (
	DefaultURL     = "http://localhost:8000/api/prompts"
	DefaultTimeout = 5 * time.Second

	maxBody = 1 << 20
)

// Keys are checked in order; the first non-empty string wins.
var Keys = []string{"AGENT_INSTRUCTION", "agent_instructions", "instructions"}

var (
	ErrTransport     = errors.New("persona: transport failure")
	ErrStatus        = errors.New("persona: unexpected status")
	ErrDecode        = errors.New("persona: response is not a JSON object")
	ErrNoInstruction = errors.New("persona: no instruction in response")
)

// Result of one fetch. Instruction is empty whenever Err is set.
type Result struct {
	Instruction string
	Err         error
}

func (r Result) Ok() bool {
	return r.Err == nil && r.Instruction != ""
}

// Kind names the error class of r, "ok" on success.
func (r Result) Kind() string {
	switch {
	case r.Ok():
		return "ok"
	case errors.Is(r.Err, ErrStatus):
		return "status"
	case errors.Is(r.Err, ErrDecode):
		return "decode"
	case errors.Is(r.Err, ErrNoInstruction):
		return "no_instruction"
	default:
		return "transport"
	}
}

type Fetcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewFetcher falls back to DefaultURL, DefaultTimeout and
// http.DefaultClient for zero values.
func NewFetcher(url string, timeout time.Duration, client *http.Client) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{url: url, timeout: timeout, client: client}
}

func (f *Fetcher) URL() string {
	return f.url
}

// Fetch makes exactly one GET request. It never panics and never retries.
func (f *Fetcher) Fetch(ctx context.Context) Result {
	res := f.fetch(ctx)
	metrics.PersonaFetch(res.Kind())

	if res.Ok() {
		log.Info("Fetched persona instruction", "url", f.url, "chars", len(res.Instruction))
	} else {
		log.Warn("Failed to fetch persona instruction", "url", f.url, "err", res.Err)
	}
	return res
}

func (f *Fetcher) fetch(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return Result{Err: fmt.Errorf("%w: %s", ErrStatus, resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{Err: fmt.Errorf("%w: read body: %w", ErrTransport, err)}
	}

	return extract(body)
}

func extract(body []byte) Result {
	if !gjson.ValidBytes(body) {
		return Result{Err: ErrDecode}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Result{Err: ErrDecode}
	}

	for _, key := range Keys {
		v := root.Get(gjson.Escape(key))
		if v.Type == gjson.String && v.Str != "" {
			return Result{Instruction: v.Str}
		}
	}
	return Result{Err: ErrNoInstruction}
}

// FetchAsync runs Fetch on its own goroutine. The channel yields exactly
// one Result and is then closed.
func (f *Fetcher) FetchAsync(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		defer func() {
			if p := recover(); p != nil {
				log.Error("Persona fetch panicked", "panic", p)
				out <- Result{Err: fmt.Errorf("%w: panic: %v", ErrTransport, p)}
			}
		}()
		out <- f.Fetch(ctx)
	}()
	return out
}
