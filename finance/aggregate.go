package finance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/tool"
)

const (
	// AggregateToolName is the name the model uses to invoke the aggregation tool.
	AggregateToolName = "AggregateSpending"

	defaultTopN = 10
	maxTopN     = 20
)

type aggregateResult struct {
	Success    bool            `json:"success"`
	Count      int             `json:"count"`
	GrandTotal float64         `json:"grandTotal"`
	Groups     []CategoryGroup `json:"groups"`
}

// NewAggregateTool builds the grouped spending aggregation tool on top of the
// given store.
func NewAggregateTool(store Store) *tool.Tool {
	return &tool.Tool{
		Name:        AggregateToolName,
		Description: "Aggregate the user's spending grouped by category, largest categories first. By default only spending is counted; set includePositive to also count income and refunds.",
		Parameters: []tool.Parameter{
			{
				Name:        "topN",
				Type:        "number",
				Description: fmt.Sprintf("Number of top categories to return (default %d, at most %d).", defaultTopN, maxTopN),
				Default:     defaultTopN,
			},
			{
				Name:        "includePositive",
				Type:        "boolean",
				Description: "Include income and refunds in the totals (default false).",
				Default:     false,
			},
		},
		Handler: func(ctx context.Context, scope *identity.Scope, args map[string]any) (string, error) {
			topN := tool.IntArg(args, "topN", defaultTopN, maxTopN)
			includePositive := tool.BoolArg(args, "includePositive", false)

			groups, err := store.AggregateByCategory(ctx, scope.UserID(), topN, includePositive)
			if err != nil {
				return "", fmt.Errorf("aggregate spending: %w", err)
			}

			if len(groups) == 0 {
				return encodeNoData()
			}
			if len(groups) > topN {
				groups = groups[:topN]
			}

			var grandTotal float64
			for _, g := range groups {
				grandTotal += g.Total
			}

			data, err := json.Marshal(aggregateResult{
				Success:    true,
				Count:      len(groups),
				GrandTotal: grandTotal,
				Groups:     groups,
			})
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}
