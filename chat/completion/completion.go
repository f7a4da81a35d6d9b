package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o"`
	MaxCompletionToken int64         `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"512"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Client wraps the OpenAI chat-completions API for single-turn use.
type Client struct {
	sdk         openaisdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ contractx.Completer = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("completion api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	return &Client{
		sdk:         openaisdk.NewClient(opts...),
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxCompletionToken,
		temperature: cfg.Temperature,
	}, nil
}

// Complete performs one non-streaming completion and returns the first
// choice as a Reply.
func (c *Client) Complete(ctx context.Context, msgs []contractx.Message, tools []contractx.ToolSchema) (contractx.Reply, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, c.params(msgs, tools))
	if err != nil {
		return contractx.Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return contractx.Reply{}, errors.New("chat completion: no choices returned")
	}
	return replyFromMessage(resp.Choices[0].Message.Content, resp.Choices[0].Message.ToolCalls), nil
}

// CompleteStream performs one streaming completion, forwarding each
// content fragment to emit in delivery order. Fragments that arrive
// empty are forwarded as empty chunks, not skipped. The accumulated
// reply (text plus any tool call) is returned after end-of-stream.
func (c *Client) CompleteStream(ctx context.Context, msgs []contractx.Message, tools []contractx.ToolSchema, emit contractx.Emit) (contractx.Reply, error) {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, c.params(msgs, tools))
	defer stream.Close()

	acc := openaisdk.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if !delta.JSON.Content.Valid() {
			continue
		}
		if err := emit(delta.Content); err != nil {
			return contractx.Reply{}, fmt.Errorf("emit fragment: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return contractx.Reply{}, fmt.Errorf("chat completion stream: %w", err)
	}
	if len(acc.Choices) == 0 {
		return contractx.Reply{}, errors.New("chat completion stream: no choices returned")
	}
	return replyFromMessage(acc.Choices[0].Message.Content, acc.Choices[0].Message.ToolCalls), nil
}

func (c *Client) params(msgs []contractx.Message, tools []contractx.ToolSchema) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(c.model),
		Messages:    toMessageParams(msgs),
		Temperature: openaisdk.Float(c.temperature),
		MaxTokens:   openaisdk.Int(c.maxTokens),
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openaisdk.ChatCompletionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  openaisdk.FunctionParameters(t.Parameters),
			},
		})
	}
	return params
}

func toMessageParams(msgs []contractx.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case contractx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case contractx.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				out = append(out, assistantToolCallParam(m))
				continue
			}
			out = append(out, openaisdk.AssistantMessage(m.Content))
		case contractx.RoleTool:
			out = append(out, openaisdk.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}

func assistantToolCallParam(m contractx.Message) openaisdk.ChatCompletionMessageParamUnion {
	calls := make([]openaisdk.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		args, err := json.Marshal(tc.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		calls = append(calls, openaisdk.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}
	return openaisdk.ChatCompletionMessageParamUnion{
		OfAssistant: &openaisdk.ChatCompletionAssistantMessageParam{
			ToolCalls: calls,
		},
	}
}

func replyFromMessage(content string, calls []openaisdk.ChatCompletionMessageToolCall) contractx.Reply {
	reply := contractx.Reply{Text: content}
	if len(calls) == 0 {
		return reply
	}

	// Only the first call is acted on; this workflow exposes a single
	// function and the model is not asked for parallel calls.
	call := calls[0]
	reply.Tool = &contractx.ToolInvocation{
		ID:        call.ID,
		Name:      strings.TrimSpace(call.Function.Name),
		Arguments: decodeArguments(call.Function.Arguments),
	}
	return reply
}

// decodeArguments flattens the model's JSON arguments into strings.
// Models occasionally emit numbers for phone-like fields; those are
// kept rather than treated as malformed.
func decodeArguments(raw string) map[string]string {
	out := map[string]string{}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		log.Warn().Err(err).Msg("tool call arguments are not valid JSON")
		return out
	}
	for k, v := range parsed {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			// nested objects/arrays have no place in this schema
		}
	}
	return out
}
