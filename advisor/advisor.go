// Package advisor is the unattended caller of the agent loop: a scheduler
// triggers it per user, it investigates recent activity through the tools,
// and persists a bounded batch of advisory records.
package advisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/finsight/agent"
	errorspkg "github.com/sweetpotato0/finsight/errors"
	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/middleware"
	"github.com/sweetpotato0/finsight/parser"
	"github.com/sweetpotato0/finsight/pkg/logging"
	"github.com/sweetpotato0/finsight/prompt"
	"github.com/sweetpotato0/finsight/tool"
)

// Store persists generated advisories. ReplaceActive must supersede the
// user's prior active advisories and insert the new batch as one atomic
// operation, so a concurrent reader never sees a partial write.
type Store interface {
	ReplaceActive(ctx context.Context, userID string, items []parser.Advisory) error
}

// directive is the generic user message that starts an unattended run.
const directive = "Review my recent transactions and spending by category, then produce your recommendations."

// Generator produces advisory records for one user at a time.
type Generator struct {
	loop   *agent.Loop
	store  Store
	parser *parser.Parser
	logger *slog.Logger
}

// NewGenerator wires the generator's own agent loop over the given model
// client and tool registry. Extra loop options are applied after the
// advisory defaults.
func NewGenerator(llm agent.LLMClient, registry *tool.Registry, store Store, opts ...agent.Option) *Generator {
	logger := logging.WithComponent("advisor")
	loopOpts := []agent.Option{
		agent.WithSystemPrompt(systemPrompt()),
		agent.WithMiddlewares(middleware.NewRecovery(), middleware.NewRunLogger(logger)),
	}
	loopOpts = append(loopOpts, opts...)
	return &Generator{
		loop:   agent.New(llm, registry, loopOpts...),
		store:  store,
		parser: parser.New(),
		logger: logger,
	}
}

// Generate runs one advisory-generation pass for the scoped user. A failed
// run persists nothing: truncation is reported as a retry-worthy error,
// filtered or empty output is logged and dropped.
func (g *Generator) Generate(ctx context.Context, scope *identity.Scope) error {
	outcome, err := g.loop.Run(ctx, scope, directive)
	if err != nil {
		return fmt.Errorf("advisory run: %w", err)
	}

	switch outcome.Status {
	case agent.StatusTruncated:
		return fmt.Errorf("%w: advisory run stopped after %d iterations", errorspkg.ErrTruncated, outcome.Iterations)
	case agent.StatusFiltered:
		g.logger.Warn("advisory run filtered, nothing persisted", "user", scope.UserID())
		return nil
	}

	items := g.parser.ParseAdvisories(outcome.Text)
	if len(items) == 0 {
		g.logger.Info("advisory run produced no recommendations", "user", scope.UserID())
		return nil
	}

	if err := g.store.ReplaceActive(ctx, scope.UserID(), items); err != nil {
		return fmt.Errorf("persist advisories: %w", err)
	}

	g.logger.Info("advisories updated", "user", scope.UserID(), "count", len(items), "iterations", outcome.Iterations)
	return nil
}

func systemPrompt() string {
	return prompt.NewBuilder().
		AddLine("You are a personal finance advisor. Investigate the user's records with the available tools before recommending anything.").
		AddSection("Tools", "SearchTransactions finds individual transactions by free text. AggregateSpending totals spending by category.").
		AddSection("Output", `Reply with JSON only, no prose: {"recommendations":[{"title":"...","message":"...","type":"savings|budget|spending|general","priority":"low|medium|high"}]}. At most 5 recommendations.`).
		Build()
}
