package finance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/tool"
)

const (
	// SearchToolName is the name the model uses to invoke the search tool.
	SearchToolName = "SearchTransactions"

	defaultSearchResults = 10
	maxSearchResults     = 20
)

// noDataResult is returned when a query matches nothing. Absence of data is
// a successful outcome, not an error.
type noDataResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

func encodeNoData() (string, error) {
	data, err := json.Marshal(noDataResult{Success: true, Count: 0, Message: "no data"})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type searchResult struct {
	Success      bool          `json:"success"`
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// NewSearchTool builds the free-text transaction search tool on top of the
// given store.
func NewSearchTool(store Store) *tool.Tool {
	return &tool.Tool{
		Name:        SearchToolName,
		Description: "Search the user's transactions by free-text query against description and category. Returns the most recent matches first.",
		Parameters: []tool.Parameter{
			{
				Name:        "query",
				Type:        "string",
				Description: "Free-text search query, e.g. a merchant name or category.",
				Required:    true,
			},
			{
				Name:        "maxResults",
				Type:        "number",
				Description: fmt.Sprintf("Maximum number of transactions to return (default %d, at most %d).", defaultSearchResults, maxSearchResults),
				Default:     defaultSearchResults,
			},
		},
		Handler: func(ctx context.Context, scope *identity.Scope, args map[string]any) (string, error) {
			query := tool.StringArg(args, "query", "")
			limit := tool.IntArg(args, "maxResults", defaultSearchResults, maxSearchResults)

			txns, err := store.SearchTransactions(ctx, scope.UserID(), query, limit)
			if err != nil {
				return "", fmt.Errorf("search transactions: %w", err)
			}

			if len(txns) == 0 {
				return encodeNoData()
			}
			if len(txns) > limit {
				txns = txns[:limit]
			}

			data, err := json.Marshal(searchResult{Success: true, Count: len(txns), Transactions: txns})
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}
