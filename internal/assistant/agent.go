package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync"

	openai "github.com/openai/openai-go/v3"

	"friday/internal/session"
)

const maxToolRounds = 4

var ErrEmptyInstructions = errors.New("assistant: empty instructions")

// ToolRunner executes the tools offered to the model.
type ToolRunner interface {
	Weather(ctx context.Context, city string) string
	Search(ctx context.Context, query string) string
}

type AgentConfig struct {
	Model        string
	Temperature  float64 // 0 leaves the provider default
	Instructions string
	Tools        ToolRunner
}

// ToolCall records one tool invocation made while producing a reply.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Result    string
}

func (t ToolCall) ToMap() (map[string]any, error) {
	m := map[string]any{
		"id":     t.ID,
		"name":   t.Name,
		"result": t.Result,
	}
	var args any
	if err := json.Unmarshal([]byte(t.Arguments), &args); err == nil {
		m["arguments"] = args
	} else {
		m["arguments"] = t.Arguments
	}
	return m, nil
}

type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Agent is the language model half of the session. Its instructions can be
// replaced while a conversation is running.
type Agent struct {
	client      openai.Client
	model       string
	temperature float64
	tools       ToolRunner

	mu           sync.RWMutex
	instructions string
	history      []openai.ChatCompletionMessageParamUnion
}

func NewAgent(client openai.Client, cfg AgentConfig) *Agent {
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT5Nano)
	}
	return &Agent{
		client:       client,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		tools:        cfg.Tools,
		instructions: cfg.Instructions,
	}
}

func (a *Agent) Instructions() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.instructions
}

// UpdateInstructions replaces the persona for every later reply.
func (a *Agent) UpdateInstructions(_ context.Context, instructions string) error {
	if instructions == "" {
		return ErrEmptyInstructions
	}
	a.SetInstructions(instructions)
	return nil
}

func (a *Agent) SetInstructions(instructions string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instructions = instructions
}

// Reply answers text. task, when set, is an extra system message for this
// turn only (used for the greeting). An empty text sends no user message.
func (a *Agent) Reply(ctx context.Context, text, task string) (Reply, error) {
	a.mu.RLock()
	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(a.instructions)}
	if task != "" {
		msgs = append(msgs, openai.SystemMessage(task))
	}
	msgs = append(msgs, a.history...)
	a.mu.RUnlock()

	var turn []openai.ChatCompletionMessageParamUnion
	if text != "" {
		turn = append(turn, openai.UserMessage(text))
	}

	logger := log.Default()
	if reg := session.FromContext(ctx); reg != nil {
		logger = logger.With("session", reg.ID())
	}

	var reply Reply
	for round := 0; ; round++ {
		params := openai.ChatCompletionNewParams{
			Messages: append(append([]openai.ChatCompletionMessageParamUnion{}, msgs...), turn...),
			Model:    openai.ChatModel(a.model),
		}
		if a.tools != nil && round < maxToolRounds {
			params.Tools = toolDefs
		}
		if a.temperature > 0 {
			params.Temperature = openai.Float(a.temperature)
		}

		resp, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return reply, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return reply, fmt.Errorf("no choices in response")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || a.tools == nil || round >= maxToolRounds {
			reply.Text = msg.Content
			turn = append(turn, msg.ToParam())
			break
		}

		turn = append(turn, msg.ToParam())
		for _, tc := range msg.ToolCalls {
			result := a.runTool(ctx, tc.Function.Name, tc.Function.Arguments)
			logger.Debug("Tool call", "tool", tc.Function.Name, "args", tc.Function.Arguments)
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				Result:    result,
			})
			turn = append(turn, openai.ToolMessage(result, tc.ID))
		}
	}

	a.mu.Lock()
	a.history = append(a.history, turn...)
	a.mu.Unlock()

	logger.Debug("Reply ready", "chars", len(reply.Text), "tools", len(reply.ToolCalls))
	return reply, nil
}

func (a *Agent) runTool(ctx context.Context, name, arguments string) string {
	var args map[string]string
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return fmt.Sprintf("Invalid arguments for %s: %v", name, err)
	}

	switch name {
	case "get_weather":
		return a.tools.Weather(ctx, args["city"])
	case "search_web":
		return a.tools.Search(ctx, args["query"])
	default:
		return fmt.Sprintf("Unknown tool %q", name)
	}
}

var toolDefs = []openai.ChatCompletionToolUnionParam{
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        "get_weather",
		Description: openai.String("Get the current weather for a given city"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]string{"type": "string"},
			},
			"required": []string{"city"},
		},
	}),
	openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        "search_web",
		Description: openai.String("Search the web for information about a given query"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]string{"type": "string"},
			},
			"required": []string{"query"},
		},
	}),
}
