package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/finsight/agent"
	"github.com/sweetpotato0/finsight/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// Provider implements the agent.LLMClient interface for Claude
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

// Generate implements agent.LLMClient
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	// Anthropic carries system text separately from the conversation.
	var systemPrompts []string
	conversationMessages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Text())
		case message.RoleUser:
			conversationMessages = append(conversationMessages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text())))
		case message.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Text() != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text()))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: tc.Args,
					},
				})
			}
			conversationMessages = append(conversationMessages, anthropic.NewAssistantMessage(blocks...))
		case message.RoleTool:
			// Tool results travel as user-role content blocks.
			conversationMessages = append(conversationMessages, anthropic.NewUserMessage(
				anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolID,
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: msg.Text()}},
						},
					},
				}))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  conversationMessages,
		MaxTokens: p.config.MaxTokens,
	}

	if len(systemPrompts) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(systemPrompts, "\n")},
		}
	}

	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}

	if len(req.Tools) > 0 {
		claudeTools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, schema := range req.Tools {
			toolParam, err := decodeToolSchema(schema)
			if err != nil {
				return nil, err
			}
			claudeTools = append(claudeTools, anthropic.ToolUnionParam{OfTool: toolParam})
		}
		params.Tools = claudeTools
	}

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API error: %w", err)
	}

	var responseText string
	toolCalls := make([]message.ToolCall, 0)

	for _, content := range apiMessage.Content {
		switch content.Type {
		case "text":
			responseText = content.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(content.Input, &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}

			toolCalls = append(toolCalls, message.ToolCall{
				ID:   content.ID,
				Name: content.Name,
				Args: args,
			})
		}
	}

	responseMsg := message.NewMessage(message.RoleAssistant, responseText)
	if len(toolCalls) > 0 {
		responseMsg.ToolCalls = toolCalls
	}

	return &agent.GenerateResponse{
		Message:      responseMsg,
		FinishReason: mapStopReason(string(apiMessage.StopReason)),
	}, nil
}

// mapStopReason converts Anthropic stop reasons onto the loop's contract.
func mapStopReason(reason string) agent.FinishReason {
	switch reason {
	case "max_tokens":
		return agent.FinishLength
	case "refusal":
		return agent.FinishContentFilter
	case "tool_use":
		return agent.FinishToolCalls
	default:
		return agent.FinishStop
	}
}

// decodeToolSchema unwraps the registry's {"type":"function","function":{...}}
// schema into the Anthropic tool shape.
func decodeToolSchema(schema map[string]any) (*anthropic.ToolParam, error) {
	fn, ok := schema["function"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool schema missing function block")
	}
	name, _ := fn["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("tool schema missing function name")
	}

	toolParam := &anthropic.ToolParam{Name: name}
	if desc, ok := fn["description"].(string); ok && desc != "" {
		toolParam.Description = param.NewOpt(desc)
	}
	if parameters, ok := fn["parameters"].(map[string]any); ok {
		properties, _ := parameters["properties"].(map[string]any)
		var required []string
		if raw, ok := parameters["required"].([]string); ok {
			required = raw
		}
		toolParam.InputSchema = anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
		}
	}
	return toolParam, nil
}
