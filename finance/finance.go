// Package finance exposes the user's transaction data to the agent as tools.
// Every query is filtered by the run's identity scope, and every numeric
// limit the model supplies is clamped server-side.
package finance

import (
	"context"
	"time"
)

// Transaction is a single ledger entry. Negative amounts are spending,
// positive amounts are income or refunds.
type Transaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
}

// CategoryGroup is one row of a grouped aggregation.
type CategoryGroup struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Store is the data-access collaborator the tools read through. Both
// operations filter by user id; implementations must never return another
// user's rows.
type Store interface {
	// SearchTransactions returns up to limit transactions for the user whose
	// description or category matches the free-text query, newest first.
	SearchTransactions(ctx context.Context, userID, query string, limit int) ([]Transaction, error)

	// AggregateByCategory groups the user's transactions by category, sorted
	// by absolute total descending, returning at most topN groups. Unless
	// includePositive is set, only spending (negative amounts) is counted.
	AggregateByCategory(ctx context.Context, userID string, topN int, includePositive bool) ([]CategoryGroup, error)
}
