// Package parser turns the model's final free text into typed results. It is
// deliberately forgiving: fenced JSON is unwrapped, malformed payloads fall
// back to a degraded answer, and unknown enum values are normalized rather
// than rejected, so the caller always receives a well-formed result.
package parser

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/finsight/pkg/logging"
)

// MaxAdvisories caps how many structured records a single run may produce,
// bounding downstream storage.
const MaxAdvisories = 5

// CitedTransaction is a transaction the model echoes back in an answer.
type CitedTransaction struct {
	Date        string  `json:"date,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Amount      float64 `json:"amount"`
}

// Answer is the structured result of a question-answering run.
type Answer struct {
	Answer       string             `json:"answer"`
	Amount       *float64           `json:"amount,omitempty"`
	Transactions []CitedTransaction `json:"transactions,omitempty"`
	Partial      bool               `json:"partial,omitempty"`
}

// AdvisoryType classifies a generated recommendation.
type AdvisoryType string

const (
	AdvisorySavings  AdvisoryType = "savings"
	AdvisoryBudget   AdvisoryType = "budget"
	AdvisorySpending AdvisoryType = "spending"
	AdvisoryGeneral  AdvisoryType = "general"
)

// AdvisoryPriority ranks a generated recommendation.
type AdvisoryPriority string

const (
	PriorityLow    AdvisoryPriority = "low"
	PriorityMedium AdvisoryPriority = "medium"
	PriorityHigh   AdvisoryPriority = "high"
)

// Advisory is one generated recommendation record.
type Advisory struct {
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Type     AdvisoryType     `json:"type"`
	Priority AdvisoryPriority `json:"priority"`
}

// Parser converts final model text into typed results.
type Parser struct {
	logger *slog.Logger
}

// New creates a parser.
func New() *Parser {
	return &Parser{logger: logging.WithComponent("parser")}
}

// ParseAnswer parses the final text of a question-answering run. Malformed
// payloads degrade to the raw text as the answer; they are logged, never
// raised.
func (p *Parser) ParseAnswer(raw string) *Answer {
	text := StripFences(raw)

	var ans Answer
	if err := json.Unmarshal([]byte(text), &ans); err != nil {
		p.logger.Warn("malformed answer payload, using raw text", "error", err, "payload", raw)
		return &Answer{Answer: strings.TrimSpace(raw)}
	}
	if ans.Answer == "" {
		ans.Answer = strings.TrimSpace(raw)
	}
	return &ans
}

// advisoryEnvelope is the expected shape of an advisory-generation reply.
type advisoryEnvelope struct {
	Recommendations []Advisory `json:"recommendations"`
}

// ParseAdvisories parses the final text of an advisory-generation run. Both
// an object with a "recommendations" array and a bare array are accepted.
// Unrecognized type or priority values are normalized to conservative
// defaults, and the result is capped at MaxAdvisories records.
func (p *Parser) ParseAdvisories(raw string) []Advisory {
	text := StripFences(raw)

	var env advisoryEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		var bare []Advisory
		if err2 := json.Unmarshal([]byte(text), &bare); err2 != nil {
			p.logger.Warn("malformed advisory payload, discarding", "error", err, "payload", raw)
			return nil
		}
		env.Recommendations = bare
	}

	items := env.Recommendations
	if len(items) > MaxAdvisories {
		items = items[:MaxAdvisories]
	}

	out := make([]Advisory, 0, len(items))
	for _, item := range items {
		if item.Title == "" && item.Message == "" {
			continue
		}
		item.Type = normalizeType(item.Type)
		item.Priority = normalizePriority(item.Priority)
		out = append(out, item)
	}
	return out
}

func normalizeType(t AdvisoryType) AdvisoryType {
	switch AdvisoryType(strings.ToLower(string(t))) {
	case AdvisorySavings, AdvisoryBudget, AdvisorySpending, AdvisoryGeneral:
		return AdvisoryType(strings.ToLower(string(t)))
	default:
		return AdvisoryGeneral
	}
}

func normalizePriority(pr AdvisoryPriority) AdvisoryPriority {
	switch AdvisoryPriority(strings.ToLower(string(pr))) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return AdvisoryPriority(strings.ToLower(string(pr)))
	default:
		return PriorityMedium
	}
}

// StripFences extracts the contents of the first markdown code fence in raw,
// tolerating a language tag and prose around the fence. Text without a fence
// is returned trimmed.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)

	start := strings.Index(text, "```")
	if start == -1 {
		return text
	}

	rest := text[start+3:]
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(rest)

	// Drop a leading language tag such as "json", whether it sits on its own
	// line or shares the line with the payload.
	lower := strings.ToLower(rest)
	for _, tag := range []string{"json", "javascript", "js"} {
		if strings.HasPrefix(lower, tag) {
			tail := rest[len(tag):]
			if tail == "" {
				return ""
			}
			if tail[0] == ' ' || tail[0] == '\n' || tail[0] == '\t' || tail[0] == '\r' || tail[0] == '{' || tail[0] == '[' {
				return strings.TrimSpace(tail)
			}
		}
	}
	return rest
}
