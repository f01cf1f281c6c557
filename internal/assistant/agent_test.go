package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friday/internal/persona"
)

type stubTools struct {
	cities []string
}

func (s *stubTools) Weather(_ context.Context, city string) string {
	s.cities = append(s.cities, city)
	return city + ": ☀️ +31°C"
}

func (s *stubTools) Search(_ context.Context, query string) string {
	return "results for " + query
}

const toolCallResponse = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "gpt-5-nano",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": null,
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "get_weather", "arguments": "{\"city\":\"Delhi\"}"}
			}]
		}
	}]
}`

const textResponse = `{
	"id": "chatcmpl-2",
	"object": "chat.completion",
	"created": 2,
	"model": "gpt-5-nano",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "दिल्ली में धूप है"}
	}]
}`

type fakeOpenAI struct {
	mu        sync.Mutex
	requests  []map[string]any
	responses []string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(resp))
}

func newTestAgent(t *testing.T, fake *fakeOpenAI, tools ToolRunner) *Agent {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return NewAgent(client, AgentConfig{
		Instructions: persona.FallbackInstruction,
		Tools:        tools,
	})
}

func messages(req map[string]any) []map[string]any {
	var out []map[string]any
	for _, m := range req["messages"].([]any) {
		out = append(out, m.(map[string]any))
	}
	return out
}

func TestAgent_ReplyWithToolCall(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{toolCallResponse, textResponse}}
	tools := &stubTools{}
	a := newTestAgent(t, fake, tools)

	reply, err := a.Reply(context.Background(), "दिल्ली का मौसम?", "")
	require.NoError(t, err)

	assert.Equal(t, "दिल्ली में धूप है", reply.Text)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Delhi"}`, Result: "Delhi: ☀️ +31°C"}, reply.ToolCalls[0])
	assert.Equal(t, []string{"Delhi"}, tools.cities)

	require.Len(t, fake.requests, 2)
	first := fake.requests[0]
	assert.Equal(t, "gpt-5-nano", first["model"])
	assert.Len(t, first["tools"], 2)

	second := messages(fake.requests[1])
	last := second[len(second)-1]
	assert.Equal(t, "tool", last["role"])
	assert.Equal(t, "call_1", last["tool_call_id"])
}

func TestAgent_InstructionsAndHistory(t *testing.T) {
	fake := &fakeOpenAI{responses: []string{textResponse}}
	a := newTestAgent(t, fake, nil)

	_, err := a.Reply(context.Background(), "", persona.Greeting)
	require.NoError(t, err)

	require.NoError(t, a.UpdateInstructions(context.Background(), "be terse"))
	assert.ErrorIs(t, a.UpdateInstructions(context.Background(), ""), ErrEmptyInstructions)
	assert.Equal(t, "be terse", a.Instructions())

	_, err = a.Reply(context.Background(), "hi", "")
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	greet := messages(fake.requests[0])
	require.Len(t, greet, 2)
	assert.Equal(t, "system", greet[0]["role"])
	assert.Equal(t, persona.FallbackInstruction, greet[0]["content"])
	assert.NotContains(t, fake.requests[0], "tools")

	second := messages(fake.requests[1])
	require.Len(t, second, 3)
	assert.Equal(t, "be terse", second[0]["content"])
	assert.Equal(t, "assistant", second[1]["role"])
	assert.Equal(t, "user", second[2]["role"])
}

func TestAgent_SetInstructions(t *testing.T) {
	a := NewAgent(openai.NewClient(option.WithAPIKey("test")), AgentConfig{Instructions: "old"})
	a.SetInstructions("new")
	assert.Equal(t, "new", a.Instructions())
	assert.Equal(t, "gpt-5-nano", a.model)
}

func TestToolCall_ToMap(t *testing.T) {
	m, err := ToolCall{ID: "1", Name: "search_web", Arguments: "not json", Result: "r"}.ToMap()
	require.NoError(t, err)
	assert.Equal(t, "not json", m["arguments"])
}
