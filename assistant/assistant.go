// Package assistant is the synchronous caller of the agent loop: it answers
// one free-text question about the scoped user's records per call.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/finsight/agent"
	errorspkg "github.com/sweetpotato0/finsight/errors"
	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/middleware"
	"github.com/sweetpotato0/finsight/parser"
	"github.com/sweetpotato0/finsight/pkg/logging"
	"github.com/sweetpotato0/finsight/pkg/telemetry"
	"github.com/sweetpotato0/finsight/prompt"
	"github.com/sweetpotato0/finsight/tool"
)

// truncatedText explains a partial outcome to the caller. The result carries
// Partial=true so clients can offer a retry.
const truncatedText = "I couldn't finish answering within the allowed number of steps. Please try again or narrow the question."

// AnswerCache caches parsed answers per user and question. Get returns
// errors.ErrNotFound on a miss.
type AnswerCache interface {
	Get(ctx context.Context, userID, question string) (*parser.Answer, error)
	Set(ctx context.Context, userID, question string, answer *parser.Answer) error
}

// RunEntry is one audit record of an agent run.
type RunEntry struct {
	UserID     string    `bson:"user_id" json:"user_id"`
	Question   string    `bson:"question" json:"question"`
	Status     string    `bson:"status" json:"status"`
	Iterations int       `bson:"iterations" json:"iterations"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// RunLog records agent runs for auditing.
type RunLog interface {
	Record(ctx context.Context, entry RunEntry) error
}

// Service answers questions about the scoped user's records.
type Service struct {
	loop     *agent.Loop
	parser   *parser.Parser
	cache    AnswerCache
	runLog   RunLog
	logger   *slog.Logger
	tracer   trace.Tracer
	loopOpts []agent.Option
}

// Option configures a Service
type Option func(*Service)

// WithCache enables answer caching
func WithCache(cache AnswerCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithRunLog enables run auditing
func WithRunLog(log RunLog) Option {
	return func(s *Service) {
		s.runLog = log
	}
}

// WithLoopOptions forwards extra options to the underlying agent loop
func WithLoopOptions(opts ...agent.Option) Option {
	return func(s *Service) {
		s.loopOpts = append(s.loopOpts, opts...)
	}
}

// NewService wires the ask service's agent loop over the given model client
// and tool registry.
func NewService(llm agent.LLMClient, registry *tool.Registry, opts ...Option) *Service {
	s := &Service{
		parser: parser.New(),
		logger: logging.WithComponent("assistant"),
		tracer: otel.Tracer("finsight/assistant"),
	}
	for _, opt := range opts {
		opt(s)
	}

	loopOpts := []agent.Option{
		agent.WithSystemPrompt(systemPrompt()),
		agent.WithMiddlewares(middleware.NewRecovery(), middleware.NewRunLogger(s.logger)),
	}
	loopOpts = append(loopOpts, s.loopOpts...)
	s.loop = agent.New(llm, registry, loopOpts...)
	return s
}

// Ask answers one question for the scoped user. The caller always receives a
// well-formed answer or an error; truncation and filtering are expressed in
// the answer itself, never as raw provider failures.
func (s *Service) Ask(ctx context.Context, scope *identity.Scope, question string) (ans *parser.Answer, err error) {
	if scope == nil {
		return nil, fmt.Errorf("%w: ask requires an identity scope", errorspkg.ErrInvalidInput)
	}
	if question == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", errorspkg.ErrInvalidInput)
	}

	ctx, span := s.tracer.Start(ctx, "assistant.Ask",
		trace.WithAttributes(attribute.Int("question_len", len(question))))
	defer func() { telemetry.End(span, err) }()

	if s.cache != nil {
		cached, cacheErr := s.cache.Get(ctx, scope.UserID(), question)
		if cacheErr == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
		if !errors.Is(cacheErr, errorspkg.ErrNotFound) {
			s.logger.Warn("answer cache lookup failed", "error", cacheErr)
		}
	}

	outcome, err := s.loop.Run(ctx, scope, question)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, scope, question, outcome)

	switch outcome.Status {
	case agent.StatusTruncated:
		return &parser.Answer{Answer: truncatedText, Partial: true}, nil
	case agent.StatusFiltered:
		return &parser.Answer{Answer: outcome.Text}, nil
	}

	answer := s.parser.ParseAnswer(outcome.Text)
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, scope.UserID(), question, answer); cacheErr != nil {
			s.logger.Warn("answer cache store failed", "error", cacheErr)
		}
	}
	return answer, nil
}

func (s *Service) audit(ctx context.Context, scope *identity.Scope, question string, outcome *agent.Outcome) {
	if s.runLog == nil {
		return
	}
	entry := RunEntry{
		UserID:     scope.UserID(),
		Question:   question,
		Status:     string(outcome.Status),
		Iterations: outcome.Iterations,
		CreatedAt:  time.Now(),
	}
	if err := s.runLog.Record(ctx, entry); err != nil {
		s.logger.Warn("run audit failed", "error", err)
	}
}

func systemPrompt() string {
	return prompt.NewBuilder().
		AddLine("You are a personal finance assistant. Answer questions about the user's own transactions using the available tools; do not invent data.").
		AddSection("Tools", "SearchTransactions finds individual transactions by free text. AggregateSpending totals spending by category.").
		AddSection("Output", `Reply with JSON only, no prose: {"answer":"...","amount":123.45,"transactions":[{"date":"...","description":"...","category":"...","amount":-1.23}]}. Omit amount and transactions when they do not apply.`).
		Build()
}
