// Package agent drives a bounded, tool-calling conversation with an LLM.
// A Loop holds configuration only; all conversation state is created when a
// run starts and discarded when it ends, so one Loop serves any number of
// concurrent runs for different users.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	errorspkg "github.com/sweetpotato0/finsight/errors"
	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/message"
	"github.com/sweetpotato0/finsight/middleware"
	"github.com/sweetpotato0/finsight/pkg/logging"
	"github.com/sweetpotato0/finsight/tool"
)

// DefaultMaxIterations bounds model round-trips per run.
const DefaultMaxIterations = 5

// FilteredText is the generic refusal surfaced when a provider filters the
// response. The provider's raw filter reason is never exposed.
const FilteredText = "I can't help with that request."

// Status is the terminal state of a run.
type Status string

const (
	// StatusComplete means the model produced a final answer.
	StatusComplete Status = "complete"
	// StatusTruncated means the run exhausted its iteration or token budget.
	// It is a partial, retry-worthy outcome, never a success.
	StatusTruncated Status = "truncated"
	// StatusFiltered means the provider suppressed the response.
	StatusFiltered Status = "filtered"
)

// Outcome is the terminal result of one run.
type Outcome struct {
	Status     Status
	Text       string
	Iterations int
	Messages   []*message.Message
}

// Loop is the agent run controller.
type Loop struct {
	llm           LLMClient
	tools         *tool.Registry
	systemPrompt  string
	maxIterations int
	middlewares   *middleware.Chain
	logger        *slog.Logger
	counter       TokenCounter
}

// Option is a function that configures a Loop
type Option func(*Loop)

// WithSystemPrompt sets the system message that seeds every run
func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) {
		l.systemPrompt = prompt
	}
}

// WithMaxIterations sets the maximum model round-trips per run
func WithMaxIterations(max int) Option {
	return func(l *Loop) {
		if max > 0 {
			l.maxIterations = max
		}
	}
}

// WithMiddlewares sets the middleware chain wrapped around each run
func WithMiddlewares(middlewares ...middleware.Middleware) Option {
	return func(l *Loop) {
		l.middlewares = middleware.NewChain(middlewares...)
	}
}

// WithLogger sets the loop's logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTokenCounter enables prompt-size logging per round-trip
func WithTokenCounter(counter TokenCounter) Option {
	return func(l *Loop) {
		l.counter = counter
	}
}

// New creates a loop over the given model client and tool registry.
func New(llm LLMClient, tools *tool.Registry, opts ...Option) *Loop {
	l := &Loop{
		llm:           llm,
		tools:         tools,
		systemPrompt:  "You are a helpful assistant.",
		maxIterations: DefaultMaxIterations,
		middlewares:   middleware.NewChain(),
		logger:        logging.WithComponent("agent"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one agent run: it seeds a fresh conversation with the system
// prompt and the user input, then alternates model calls and tool dispatch
// until the model stops, the provider filters, or the iteration budget runs
// out. Only backend unavailability and cancellation are returned as errors;
// every other condition is expressed in the Outcome.
func (l *Loop) Run(ctx context.Context, scope *identity.Scope, input string) (*Outcome, error) {
	if scope == nil {
		return nil, fmt.Errorf("%w: run requires an identity scope", errorspkg.ErrInvalidInput)
	}

	mwCtx := middleware.NewContext(ctx)
	mwCtx.Input = input

	var outcome *Outcome
	err := l.middlewares.Execute(mwCtx, func(mwCtx *middleware.Context) error {
		var runErr error
		outcome, runErr = l.run(mwCtx.Context(), scope, input)
		if outcome != nil {
			mwCtx.Messages = outcome.Messages
			mwCtx.Output = outcome.Text
		}
		mwCtx.Error = runErr
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (l *Loop) run(ctx context.Context, scope *identity.Scope, input string) (*Outcome, error) {
	// Fresh conversation per run; nothing is shared across runs.
	messages := []*message.Message{
		message.NewMessage(message.RoleSystem, l.systemPrompt),
		message.NewMessage(message.RoleUser, input),
	}
	schemas := l.tools.Schemas()

	for i := 1; i <= l.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.logPromptSize(messages, i)

		resp, err := l.llm.Generate(ctx, &GenerateRequest{Messages: messages, Tools: schemas})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errorspkg.ErrProviderUnavailable, err)
		}
		if resp == nil || resp.Message == nil {
			return nil, fmt.Errorf("%w: empty response", errorspkg.ErrProviderUnavailable)
		}

		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) > 0 {
			// One correlated result per requested call before the next model
			// turn; individual failures are fed back, never raised.
			results := l.tools.Dispatch(ctx, scope, resp.Message.ToolCalls)
			messages = append(messages, results...)
			continue
		}

		switch resp.FinishReason {
		case FinishLength:
			l.logger.Warn("run truncated by token limit", "iterations", i)
			return &Outcome{Status: StatusTruncated, Iterations: i, Messages: messages}, nil
		case FinishContentFilter:
			l.logger.Warn("run filtered by provider", "iterations", i)
			return &Outcome{Status: StatusFiltered, Text: FilteredText, Iterations: i, Messages: messages}, nil
		default:
			// stop, or a provider that reports no reason for plain text
			return &Outcome{Status: StatusComplete, Text: resp.Message.Text(), Iterations: i, Messages: messages}, nil
		}
	}

	l.logger.Warn("run truncated by iteration budget", "max_iterations", l.maxIterations)
	return &Outcome{Status: StatusTruncated, Iterations: l.maxIterations, Messages: messages}, nil
}

func (l *Loop) logPromptSize(messages []*message.Message, iteration int) {
	if l.counter == nil {
		return
	}
	total := 0
	for _, m := range messages {
		total += l.counter.CountTokens(m.Text())
	}
	l.logger.Debug("sending prompt", "iteration", iteration, "approx_tokens", total, "messages", len(messages))
}
