// ABOUTME: Reasoning provider backed by the OpenAI Responses API
// ABOUTME: Maps transcripts to input items and function calls back to bot tool calls

package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/tools"
)

// OpenAI calls the Responses API.
type OpenAI struct {
	client          openai.Client
	maxOutputTokens int64
	logger          *slog.Logger
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg ProviderConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:          openai.NewClient(opts...),
		maxOutputTokens: cfg.maxOutputTokens(),
		logger:          logger.With("component", "reasoning", "provider", "openai"),
	}, nil
}

// Reason implements bot.Reasoner.
func (o *OpenAI) Reason(ctx context.Context, req bot.Request) (*bot.Decision, error) {
	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: openAIInput(req.Transcript),
		},
		Model:           shared.ChatModel(req.Bot.Model),
		Instructions:    openai.String(req.System),
		MaxOutputTokens: openai.Int(o.maxOutputTokens),
		Temperature:     openai.Float(req.Bot.Temperature),
	}
	if len(req.Tools) > 0 {
		fnTools, err := openAITools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = fnTools
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("responses API call failed: %w", err)
	}

	decision := &bot.Decision{
		Text: resp.OutputText(),
		Usage: bot.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, item := range resp.Output {
		if call, ok := item.AsAny().(responses.ResponseFunctionToolCall); ok && call.Name != "" {
			decision.ToolCalls = append(decision.ToolCalls, bot.ToolCall{
				ID:        call.CallID,
				Name:      call.Name,
				Arguments: json.RawMessage(call.Arguments),
			})
		}
	}

	o.logger.Debug("openai decision",
		"model", req.Bot.Model,
		"tool_calls", len(decision.ToolCalls),
		"input_tokens", decision.Usage.InputTokens,
		"output_tokens", decision.Usage.OutputTokens)
	return decision, nil
}

func openAIInput(transcript []bot.Turn) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(transcript))
	for _, turn := range transcript {
		switch turn.Role {
		case bot.RoleAssistant:
			if turn.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(turn.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, call := range turn.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(argsOrEmpty(call.Arguments), call.ID, call.Name))
			}
		case bot.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(turn.ToolCallID, turn.Content))
		default:
			items = append(items, responses.ResponseInputItemParamOfMessage(turn.Content, responses.EasyInputMessageRoleUser))
		}
	}
	return items
}

func openAITools(defs []tools.Definition) ([]responses.ToolUnionParam, error) {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := schemaMap(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		param := responses.ToolParamOfFunction(def.Name, schema, false)
		if def.Description != "" && param.OfFunction != nil {
			param.OfFunction.Description = openai.String(def.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func argsOrEmpty(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}

// schemaMap decodes a JSON schema into the map form both SDKs accept.
func schemaMap(raw json.RawMessage) (map[string]any, error) {
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	if len(raw) == 0 {
		return schema, nil
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return schema, nil
}
