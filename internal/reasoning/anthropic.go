// ABOUTME: Reasoning provider backed by the Anthropic Messages API
// ABOUTME: Tool results of one step are sent back together in a single user message

package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/tools"
)

// Anthropic calls the Messages API.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
	logger    *slog.Logger
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg ProviderConfig, logger *slog.Logger) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		maxTokens: cfg.maxOutputTokens(),
		logger:    logger.With("component", "reasoning", "provider", "anthropic"),
	}, nil
}

// Reason implements bot.Reasoner.
func (a *Anthropic) Reason(ctx context.Context, req bot.Request) (*bot.Decision, error) {
	params := anthropic.MessageNewParams{
		MaxTokens:   a.maxTokens,
		Messages:    anthropicMessages(req.Transcript),
		Model:       anthropic.Model(req.Bot.Model),
		Temperature: anthropic.Float(req.Bot.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		toolParams, err := anthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = toolParams
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages API call failed: %w", err)
	}

	decision := &bot.Decision{
		Usage: bot.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	var text []string
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, variant.Text)
		case anthropic.ToolUseBlock:
			decision.ToolCalls = append(decision.ToolCalls, bot.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: json.RawMessage(variant.Input),
			})
		}
	}
	decision.Text = strings.Join(text, "\n")

	a.logger.Debug("anthropic decision",
		"model", req.Bot.Model,
		"tool_calls", len(decision.ToolCalls),
		"input_tokens", decision.Usage.InputTokens,
		"output_tokens", decision.Usage.OutputTokens)
	return decision, nil
}

// anthropicMessages converts the transcript, merging consecutive turns that
// map to the same role so user and assistant messages alternate.
func anthropicMessages(transcript []bot.Turn) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		role    anthropic.MessageParamRole
		pending []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if role == anthropic.MessageParamRoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(pending...))
		} else {
			out = append(out, anthropic.NewUserMessage(pending...))
		}
		pending = nil
	}
	push := func(r anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if r != role {
			flush()
			role = r
		}
		pending = append(pending, blocks...)
	}

	for _, turn := range transcript {
		switch turn.Role {
		case bot.RoleAssistant:
			if turn.Content != "" {
				push(anthropic.MessageParamRoleAssistant, anthropic.NewTextBlock(turn.Content))
			}
			for _, call := range turn.ToolCalls {
				push(anthropic.MessageParamRoleAssistant,
					anthropic.NewToolUseBlock(call.ID, json.RawMessage(argsOrEmpty(call.Arguments)), call.Name))
			}
		case bot.RoleTool:
			push(anthropic.MessageParamRoleUser, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: turn.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: turn.Content},
					}},
				},
			})
		default:
			push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(turn.Content))
		}
	}
	flush()
	return out
}

func anthropicTools(defs []tools.Definition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := schemaMap(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if req, ok := schema["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					input.Required = append(input.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: input,
			},
		})
	}
	return out, nil
}
