package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the chat-model NLU backend. Any OpenAI-compatible
// endpoint works (Ollama, Azure, vLLM).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type openAIGateway struct {
	client  openai.Client
	model   string
	intents func() []string
}

// NewOpenAI returns a Gateway that asks a chat model to pick one of the
// intents returned by catalogue.
func NewOpenAI(cfg OpenAIConfig, catalogue func() []string) Gateway {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIGateway{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		intents: catalogue,
	}
}

// systemPrompt takes the comma-separated intent catalogue.
const systemPrompt = `You interpret chat messages sent to a bot that manages its own name and tag.

Known intents: %s

Parameters used by the name intents:
  "type": one of "first name", "middle name", "last name", "tag" (omit when not stated)
  "name": the new name or tag the user asked for (omit when not stated)

Respond ONLY with a JSON object:
{
  "action":     "<one known intent, or \"input.unknown\" if none applies>",
  "parameters": {"<name>": "<value>", ...},
  "speech":     "<a short friendly reply to use when the intent needs no action>"
}`

type openAIReply struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	Speech     string         `json:"speech"`
}

// Query classifies text. sessionID is forwarded as the end-user identifier.
func (g *openAIGateway) Query(ctx context.Context, text, sessionID string) (*Result, error) {
	fail := func(err error) error {
		return &RequestError{Backend: "openai", Err: err}
	}

	var catalogue []string
	if g.intents != nil {
		catalogue = g.intents()
	}
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, strings.Join(catalogue, ", "))),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(256),
		User:      openai.String(sessionID),
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &RequestError{Backend: "openai", Status: apiErr.StatusCode, Err: err}
		}
		return nil, fail(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fail(errors.New("no choices returned"))
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fail(fmt.Errorf("refused: %s", choice.Message.Refusal))
	}

	var reply openAIReply
	if err := json.Unmarshal([]byte(choice.Message.Content), &reply); err != nil {
		return nil, fail(fmt.Errorf("decode classification: %w (raw: %.200s)", err, choice.Message.Content))
	}
	if reply.Action == "" {
		return nil, fail(errors.New("classification has no action"))
	}
	if reply.Parameters == nil {
		reply.Parameters = map[string]any{}
	}
	return &Result{
		Action:      reply.Action,
		Parameters:  reply.Parameters,
		Fulfillment: Fulfillment{Speech: reply.Speech},
	}, nil
}
