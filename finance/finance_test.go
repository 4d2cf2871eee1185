package finance

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/message"
	"github.com/sweetpotato0/finsight/tool"
)

// memStore is an in-memory Store used across the tool tests.
type memStore struct {
	mu   sync.RWMutex
	data map[string][]Transaction // keyed by user id
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]Transaction)}
}

func (s *memStore) add(userID string, txns ...Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = append(s.data[userID], txns...)
}

func (s *memStore) SearchTransactions(ctx context.Context, userID, query string, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []Transaction
	for _, t := range s.data[userID] {
		if strings.Contains(strings.ToLower(t.Description), q) || strings.Contains(strings.ToLower(t.Category), q) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) AggregateByCategory(ctx context.Context, userID string, topN int, includePositive bool) ([]CategoryGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCat := make(map[string]*CategoryGroup)
	for _, t := range s.data[userID] {
		if !includePositive && t.Amount >= 0 {
			continue
		}
		g, ok := byCat[t.Category]
		if !ok {
			g = &CategoryGroup{Name: t.Category}
			byCat[t.Category] = g
		}
		g.Total += t.Amount
		g.Count++
	}

	groups := make([]CategoryGroup, 0, len(byCat))
	for _, g := range byCat {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Total, groups[j].Total
		if a < 0 {
			a = -a
		}
		if b < 0 {
			b = -b
		}
		return a > b
	})
	if len(groups) > topN {
		groups = groups[:topN]
	}
	return groups, nil
}

func scope(t *testing.T, userID string) *identity.Scope {
	t.Helper()
	s, err := identity.NewScope(userID)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	return s
}

func seedCoffee(store *memStore, userID string, n int) {
	for i := 0; i < n; i++ {
		store.add(userID, Transaction{
			ID:          userID + "-coffee-" + string(rune('a'+i)),
			Date:        time.Date(2026, 8, 1+i%27, 9, 0, 0, 0, time.UTC),
			Description: "Espresso Bar",
			Category:    "coffee",
			Amount:      -4.50,
		})
	}
}

func TestSearchToolClampsMaxResults(t *testing.T) {
	store := newMemStore()
	seedCoffee(store, "u1", 50)
	search := NewSearchTool(store)

	out, err := search.Execute(context.Background(), scope(t, "u1"), map[string]any{
		"query":      "coffee",
		"maxResults": float64(1000),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var res struct {
		Success      bool          `json:"success"`
		Count        int           `json:"count"`
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success")
	}
	if res.Count > 20 || len(res.Transactions) > 20 {
		t.Errorf("maxResults not clamped: count=%d len=%d", res.Count, len(res.Transactions))
	}
}

func TestSearchToolNoDataIsSuccess(t *testing.T) {
	search := NewSearchTool(newMemStore())

	out, err := search.Execute(context.Background(), scope(t, "u1"), map[string]any{"query": "unicorn"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var res struct {
		Success bool   `json:"success"`
		Count   int    `json:"count"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Success {
		t.Errorf("zero matches must be success, not error")
	}
	if res.Count != 0 || res.Message != "no data" {
		t.Errorf("wrong no-data shape: %s", out)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	search := NewSearchTool(newMemStore())
	if _, err := search.Execute(context.Background(), scope(t, "u1"), map[string]any{}); err == nil {
		t.Errorf("missing query must fail validation")
	}
}

func TestAggregateToolClampsTopN(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 40; i++ {
		store.add("u1", Transaction{
			ID:       "t" + string(rune('a'+i)),
			Category: "cat-" + string(rune('a'+i)),
			Amount:   -float64(i + 1),
		})
	}
	agg := NewAggregateTool(store)

	out, err := agg.Execute(context.Background(), scope(t, "u1"), map[string]any{"topN": float64(1000)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var res struct {
		Success bool            `json:"success"`
		Count   int             `json:"count"`
		Groups  []CategoryGroup `json:"groups"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Groups) > 20 {
		t.Errorf("topN not clamped: %d groups", len(res.Groups))
	}
}

func TestAggregateToolExcludesIncomeByDefault(t *testing.T) {
	store := newMemStore()
	store.add("u1",
		Transaction{ID: "1", Category: "salary", Amount: 5000},
		Transaction{ID: "2", Category: "rent", Amount: -1200},
	)
	agg := NewAggregateTool(store)

	out, err := agg.Execute(context.Background(), scope(t, "u1"), map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var res struct {
		Groups     []CategoryGroup `json:"groups"`
		GrandTotal float64         `json:"grandTotal"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Groups) != 1 || res.Groups[0].Name != "rent" {
		t.Errorf("income must be excluded by default: %+v", res.Groups)
	}
	if res.GrandTotal != -1200 {
		t.Errorf("wrong grand total: %v", res.GrandTotal)
	}
}

func TestAggregateToolSortedByMagnitude(t *testing.T) {
	store := newMemStore()
	store.add("u1",
		Transaction{ID: "1", Category: "coffee", Amount: -50},
		Transaction{ID: "2", Category: "rent", Amount: -1200},
		Transaction{ID: "3", Category: "groceries", Amount: -300},
	)
	agg := NewAggregateTool(store)

	out, err := agg.Execute(context.Background(), scope(t, "u1"), map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var res struct {
		Groups []CategoryGroup `json:"groups"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"rent", "groceries", "coffee"}
	for i, name := range want {
		if res.Groups[i].Name != name {
			t.Errorf("group %d = %s, want %s", i, res.Groups[i].Name, name)
		}
	}
}

func TestAggregateToolNoData(t *testing.T) {
	agg := NewAggregateTool(newMemStore())

	out, err := agg.Execute(context.Background(), scope(t, "u1"), map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Success || res.Message != "no data" {
		t.Errorf("wrong no-data shape: %s", out)
	}
}

// Concurrent runs for different identities must never observe each other's
// rows, even though the tools are shared.
func TestToolsIsolateIdentitiesUnderConcurrency(t *testing.T) {
	store := newMemStore()
	store.add("alice", Transaction{ID: "a1", Description: "Espresso Bar", Category: "coffee", Amount: -4.50})
	store.add("bob", Transaction{ID: "b1", Description: "Espresso Bar", Category: "coffee", Amount: -9.99})

	registry := tool.MustNewRegistry(NewSearchTool(store), NewAggregateTool(store))
	scopes := map[string]*identity.Scope{
		"alice": scope(t, "alice"),
		"bob":   scope(t, "bob"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, user := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()

				results := registry.Dispatch(context.Background(), scopes[user], []message.ToolCall{
					{ID: "c1", Name: SearchToolName, Args: map[string]any{"query": "coffee"}},
				})

				var res struct {
					Transactions []Transaction `json:"transactions"`
				}
				if err := json.Unmarshal([]byte(results[0].Content), &res); err != nil {
					t.Errorf("unmarshal: %v", err)
					return
				}
				for _, txn := range res.Transactions {
					if !strings.HasPrefix(txn.ID, user[:1]) {
						t.Errorf("run for %s observed foreign row %s", user, txn.ID)
					}
				}
			}(user)
		}
	}
	wg.Wait()
}
