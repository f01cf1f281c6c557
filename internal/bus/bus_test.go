package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hub(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestUtterances(t *testing.T) {
	url := hub(t, func(conn *websocket.Conn) {
		for _, m := range []string{
			`{"kind":"utterance","to":"friday","content":"hello"}`,
			`not json`,
			`{"kind":"utterance","to":"other","content":"not for us"}`,
			`{"kind":"reply","to":"friday","content":"ignored"}`,
			`{"kind":"utterance","content":"broadcast"}`,
		} {
			conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url, "friday")
	require.NoError(t, err)
	defer c.Close()

	var got []string
	for text := range c.Utterances(ctx) {
		got = append(got, text)
	}
	assert.Equal(t, []string{"hello", "broadcast"}, got)
}

func TestSayAndAppend(t *testing.T) {
	received := make(chan Message, 2)
	url := hub(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m Message
			json.Unmarshal(data, &m)
			received <- m
		}
	})

	c, err := Dial(context.Background(), url, "friday")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Say(context.Background(), "नमस्ते"))
	require.NoError(t, c.Append([]byte(`{"type":"user_msg"}`+"\n")))

	first := <-received
	assert.Equal(t, Message{From: "friday", Kind: KindReply, Content: "नमस्ते"}, first)

	second := <-received
	assert.Equal(t, Message{From: "friday", Kind: KindTranscript, Content: `{"type":"user_msg"}`}, second)
}

func TestWrite_WireFormat(t *testing.T) {
	raw := make(chan string, 1)
	url := hub(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		raw <- string(data)
	})

	c, err := Dial(context.Background(), url, "friday")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Say(context.Background(), "hello"))
	assert.JSONEq(t, `{"from":"friday","to":"","kind":"reply","content":"hello"}`, <-raw)
}

func TestUtterances_ContextCancel(t *testing.T) {
	url := hub(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	c, err := Dial(context.Background(), url, "friday")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Utterances(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("utterance channel not closed after cancel")
	}
}

func TestDial_BadURL(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", "friday")
	assert.Error(t, err)
}
