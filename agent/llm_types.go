package agent

import (
	"context"

	"github.com/sweetpotato0/finsight/message"
)

// FinishReason is the model's signal for why generation stopped.
type FinishReason string

const (
	// FinishStop means the model produced a complete answer.
	FinishStop FinishReason = "stop"
	// FinishLength means generation hit a token limit; the output is partial.
	FinishLength FinishReason = "length"
	// FinishContentFilter means the provider suppressed the output.
	FinishContentFilter FinishReason = "content_filter"
	// FinishToolCalls means the model is requesting tool invocations.
	FinishToolCalls FinishReason = "tool_calls"
)

// LLMClient is the model-backend collaborator.
type LLMClient interface {
	// Generate sends one conversation turn and receives exactly one response.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest bundles inputs for a non-streaming LLM invocation.
type GenerateRequest struct {
	Messages []*message.Message
	Tools    []map[string]any
}

// GenerateResponse captures the LLM reply for non-streaming calls.
type GenerateResponse struct {
	Message      *message.Message
	FinishReason FinishReason
}

// TokenCounter estimates prompt sizes for logging. Optional.
type TokenCounter interface {
	CountTokens(text string) int
}
