package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	errorspkg "github.com/sweetpotato0/finsight/errors"
	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/message"
	"github.com/sweetpotato0/finsight/tool"
)

// scriptedLLM replays a fixed sequence of responses and records every request
// it receives. Once the script is exhausted it repeats the last response.
type scriptedLLM struct {
	responses []*GenerateResponse
	requests  []*GenerateRequest
	err       error
}

func (s *scriptedLLM) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func stopResponse(text string) *GenerateResponse {
	return &GenerateResponse{
		Message:      message.NewMessage(message.RoleAssistant, text),
		FinishReason: FinishStop,
	}
}

func toolCallResponse(calls ...message.ToolCall) *GenerateResponse {
	return &GenerateResponse{
		Message:      message.NewToolCallMessage(calls),
		FinishReason: FinishToolCalls,
	}
}

func testScope(t *testing.T, userID string) *identity.Scope {
	t.Helper()
	scope, err := identity.NewScope(userID)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	return scope
}

// echoTool records the arguments it was called with and returns a canned payload.
type echoTool struct {
	calls   []map[string]any
	payload string
	err     error
}

func (e *echoTool) tool(name string) *tool.Tool {
	return &tool.Tool{
		Name:        name,
		Description: "test tool",
		Handler: func(ctx context.Context, scope *identity.Scope, args map[string]any) (string, error) {
			e.calls = append(e.calls, args)
			if e.err != nil {
				return "", e.err
			}
			return e.payload, nil
		},
	}
}

func TestRunImmediateStop(t *testing.T) {
	llm := &scriptedLLM{responses: []*GenerateResponse{
		stopResponse(`{"answer":"You spent $42.50 on coffee","amount":42.50,"transactions":[]}`),
	}}
	loop := New(llm, tool.NewRegistry())

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "coffee spend?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusComplete {
		t.Errorf("expected complete, got %s", outcome.Status)
	}
	if outcome.Iterations != 1 {
		t.Errorf("expected 1 round-trip, got %d", outcome.Iterations)
	}
	if !strings.Contains(outcome.Text, "$42.50") {
		t.Errorf("unexpected final text: %s", outcome.Text)
	}
}

func TestRunToolCallThenStop(t *testing.T) {
	search := &echoTool{payload: `{"success":true,"count":3,"transactions":[]}`}
	registry := tool.MustNewRegistry(search.tool("SearchTransactions"))

	llm := &scriptedLLM{responses: []*GenerateResponse{
		toolCallResponse(message.ToolCall{
			ID:   "call_1",
			Name: "SearchTransactions",
			Args: map[string]any{"query": "coffee", "maxResults": float64(5)},
		}),
		stopResponse(`{"answer":"three coffee purchases"}`),
	}}
	loop := New(llm, registry)

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "coffee?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusComplete {
		t.Fatalf("expected complete, got %s", outcome.Status)
	}
	if outcome.Iterations != 2 {
		t.Errorf("expected exactly 2 round-trips, got %d", outcome.Iterations)
	}
	if len(search.calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(search.calls))
	}
	if search.calls[0]["query"] != "coffee" {
		t.Errorf("tool got wrong args: %v", search.calls[0])
	}

	// The second request must carry exactly one correlated tool result.
	second := llm.requests[1]
	var results []*message.Message
	for _, m := range second.Messages {
		if m.Role == message.RoleTool {
			results = append(results, m)
		}
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 tool result message, got %d", len(results))
	}
	if results[0].ToolID != "call_1" {
		t.Errorf("tool result not correlated: %s", results[0].ToolID)
	}
}

func TestRunTruncatesAtIterationBudget(t *testing.T) {
	search := &echoTool{payload: `{"success":true,"count":0,"message":"no data"}`}
	registry := tool.MustNewRegistry(search.tool("SearchTransactions"))

	// The model never stops asking for tools.
	llm := &scriptedLLM{responses: []*GenerateResponse{
		toolCallResponse(message.ToolCall{ID: "c1", Name: "SearchTransactions", Args: map[string]any{"query": "x"}}),
	}}
	loop := New(llm, registry)

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusTruncated {
		t.Errorf("expected truncated, got %s", outcome.Status)
	}
	if len(llm.requests) != DefaultMaxIterations {
		t.Errorf("expected exactly %d model round-trips, got %d", DefaultMaxIterations, len(llm.requests))
	}
	if outcome.Iterations != DefaultMaxIterations {
		t.Errorf("expected %d iterations, got %d", DefaultMaxIterations, outcome.Iterations)
	}
}

func TestRunEveryCallGetsAResult(t *testing.T) {
	ok := &echoTool{payload: `{"success":true,"count":1,"transactions":[]}`}
	failing := &echoTool{err: errors.New("store exploded")}
	registry := tool.MustNewRegistry(ok.tool("SearchTransactions"), failing.tool("AggregateSpending"))

	llm := &scriptedLLM{responses: []*GenerateResponse{
		toolCallResponse(
			message.ToolCall{ID: "c1", Name: "SearchTransactions", Args: map[string]any{"query": "a"}},
			message.ToolCall{ID: "c2", Name: "AggregateSpending", Args: map[string]any{}},
			message.ToolCall{ID: "c3", Name: "NoSuchTool", Args: map[string]any{}},
		),
		stopResponse(`{"answer":"done"}`),
	}}
	loop := New(llm, registry)

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusComplete {
		t.Fatalf("tool failures must not abort the run, got %s", outcome.Status)
	}

	second := llm.requests[1]
	got := map[string]string{}
	for _, m := range second.Messages {
		if m.Role == message.RoleTool {
			got[m.ToolID] = m.Content
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected a result for every call, got %d", len(got))
	}

	for _, id := range []string{"c2", "c3"} {
		var payload struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(got[id]), &payload); err != nil {
			t.Fatalf("result %s is not JSON: %v", id, err)
		}
		if payload.Success {
			t.Errorf("result %s should be error-shaped", id)
		}
		if payload.Error == "" {
			t.Errorf("result %s missing error descriptor", id)
		}
	}
}

func TestRunLengthFinishIsTruncated(t *testing.T) {
	llm := &scriptedLLM{responses: []*GenerateResponse{
		{
			Message:      message.NewMessage(message.RoleAssistant, "partial an"),
			FinishReason: FinishLength,
		},
	}}
	loop := New(llm, tool.NewRegistry())

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusTruncated {
		t.Errorf("length finish must be truncated, got %s", outcome.Status)
	}
}

func TestRunContentFilterIsGeneric(t *testing.T) {
	llm := &scriptedLLM{responses: []*GenerateResponse{
		{
			Message:      message.NewMessage(message.RoleAssistant, "policy violation: category XYZ"),
			FinishReason: FinishContentFilter,
		},
	}}
	loop := New(llm, tool.NewRegistry())

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusFiltered {
		t.Fatalf("expected filtered, got %s", outcome.Status)
	}
	if outcome.Text != FilteredText {
		t.Errorf("raw filter reason must never surface, got %q", outcome.Text)
	}
}

func TestRunProviderErrorSurfaces(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("connection refused")}
	loop := New(llm, tool.NewRegistry())

	_, err := loop.Run(context.Background(), testScope(t, "u1"), "q")
	if !errors.Is(err, errorspkg.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRunCancellation(t *testing.T) {
	llm := &scriptedLLM{responses: []*GenerateResponse{stopResponse("ok")}}
	loop := New(llm, tool.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loop.Run(ctx, testScope(t, "u1"), "q")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(llm.requests) != 0 {
		t.Errorf("cancelled run must not call the model")
	}
}

func TestRunRequiresScope(t *testing.T) {
	llm := &scriptedLLM{responses: []*GenerateResponse{stopResponse("ok")}}
	loop := New(llm, tool.NewRegistry())

	_, err := loop.Run(context.Background(), nil, "q")
	if !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() *Outcome {
		search := &echoTool{payload: `{"success":true,"count":2,"transactions":[]}`}
		registry := tool.MustNewRegistry(search.tool("SearchTransactions"))
		llm := &scriptedLLM{responses: []*GenerateResponse{
			toolCallResponse(message.ToolCall{ID: "c1", Name: "SearchTransactions", Args: map[string]any{"query": "rent"}}),
			stopResponse(`{"answer":"rent paid twice","amount":2400}`),
		}}
		outcome, err := New(llm, registry).Run(context.Background(), testScope(t, "u1"), "rent?")
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return outcome
	}

	first, second := run(), run()
	if first.Text != second.Text || first.Status != second.Status || first.Iterations != second.Iterations {
		t.Errorf("identical inputs must yield identical outcomes: %+v vs %+v", first, second)
	}
}

func TestRunSeedsSystemAndUserMessage(t *testing.T) {
	llm := &scriptedLLM{responses: []*GenerateResponse{stopResponse("ok")}}
	loop := New(llm, tool.NewRegistry(), WithSystemPrompt("finance system prompt"))

	if _, err := loop.Run(context.Background(), testScope(t, "u1"), "the question"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := llm.requests[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("expected system+user seed, got %d messages", len(msgs))
	}
	if msgs[0].Role != message.RoleSystem || msgs[0].Text() != "finance system prompt" {
		t.Errorf("system seed wrong: %+v", msgs[0])
	}
	if msgs[1].Role != message.RoleUser || msgs[1].Text() != "the question" {
		t.Errorf("user seed wrong: %+v", msgs[1])
	}
}

func TestWithMaxIterations(t *testing.T) {
	registry := tool.MustNewRegistry((&echoTool{payload: "{}"}).tool("SearchTransactions"))
	llm := &scriptedLLM{responses: []*GenerateResponse{
		toolCallResponse(message.ToolCall{ID: "c1", Name: "SearchTransactions", Args: map[string]any{"query": "x"}}),
	}}
	loop := New(llm, registry, WithMaxIterations(2))

	outcome, err := loop.Run(context.Background(), testScope(t, "u1"), "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusTruncated || len(llm.requests) != 2 {
		t.Errorf("expected truncation after 2 round-trips, got %s after %d", outcome.Status, len(llm.requests))
	}
}
