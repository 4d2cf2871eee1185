package prompt

import (
	"strings"
	"testing"
)

func TestBuilder(t *testing.T) {
	got := NewBuilder().
		AddLine("You are an assistant.").
		AddSection("Tools", "SearchTransactions and AggregateSpending.").
		Add("tail").
		Build()

	if !strings.HasPrefix(got, "You are an assistant.\n") {
		t.Errorf("missing leading line: %q", got)
	}
	if !strings.Contains(got, "## Tools\nSearchTransactions and AggregateSpending.\n") {
		t.Errorf("missing section: %q", got)
	}
	if !strings.HasSuffix(got, "tail") {
		t.Errorf("missing raw part: %q", got)
	}
}

func TestBuilderEmpty(t *testing.T) {
	if got := NewBuilder().Build(); got != "" {
		t.Errorf("empty builder = %q", got)
	}
}
