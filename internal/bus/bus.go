// Package bus connects the assistant to the message hub over WebSocket.
// The hub delivers utterances, receives replies and mirrors transcripts.
package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	KindUtterance  = "utterance"
	KindReply      = "reply"
	KindTranscript = "transcript"
)

var ErrDecode = errors.New("bus: malformed message")

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

type Client struct {
	conn *websocket.Conn
	name string

	wmu sync.Mutex
}

// Dial connects to the hub at wsURL and identifies as name.
func Dial(ctx context.Context, wsURL, name string) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse bus url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus: %w", err)
	}

	log.Info("Connected to bus", "url", wsURL)
	return &Client{conn: conn, name: name}, nil
}

func (c *Client) Read() (*Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &m, nil
}

// Write is safe for concurrent use.
func (c *Client) Write(m *Message) error {
	if m.From == "" {
		m.From = c.name
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Utterances streams the text of utterance messages addressed to this
// client. The channel closes when the connection fails or ctx ends.
func (c *Client) Utterances(ctx context.Context) <-chan string {
	out := make(chan string)

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })

	go func() {
		defer close(out)
		defer stop()

		for {
			m, err := c.Read()
			if errors.Is(err, ErrDecode) {
				log.Warn("Skipping malformed bus message", "err", err)
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("Bus read failed", "err", err)
				}
				return
			}
			if m.Kind != KindUtterance || (m.To != "" && m.To != c.name) {
				continue
			}

			select {
			case out <- m.Content:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Say sends a reply to the hub.
func (c *Client) Say(_ context.Context, text string) error {
	return c.Write(&Message{Kind: KindReply, Content: text})
}

// Append mirrors one transcript line to the hub.
func (c *Client) Append(line []byte) error {
	return c.Write(&Message{Kind: KindTranscript, Content: string(bytes.TrimRight(line, "\n"))})
}

func (c *Client) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
