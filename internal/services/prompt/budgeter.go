// Package prompt turns a trip context and chat history into the bounded
// text block sent to a model.
package prompt

import (
	"strings"
	"unicode/utf8"

	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/metrics"
)

// TruncationMarker is appended when the payload is cut to fit its budget
const TruncationMarker = "\n[Context truncated]"

const (
	DefaultFreeBudget   = 4000
	DefaultProBudget    = 12000
	DefaultHistoryTurns = 6
)

// Budgeter builds context payloads capped at a character budget
type Budgeter struct {
	freeBudget   int
	proBudget    int
	historyTurns int
}

// NewBudgeter creates a budgeter; non-positive budgets fall back to defaults
func NewBudgeter(freeBudget, proBudget, historyTurns int) *Budgeter {
	if freeBudget <= 0 {
		freeBudget = DefaultFreeBudget
	}
	if proBudget <= 0 {
		proBudget = DefaultProBudget
	}
	if historyTurns < 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Budgeter{freeBudget: freeBudget, proBudget: proBudget, historyTurns: historyTurns}
}

// BudgetFor returns the character budget for a plan
func (b *Budgeter) BudgetFor(isPro bool) int {
	if isPro {
		return b.proBudget
	}
	return b.freeBudget
}

// Build renders tc and the most recent history turns, in fixed section
// order, and hard-cuts the result at budgetChars characters (runes).
// The output never exceeds budgetChars; truncated reports whether it was cut.
func (b *Budgeter) Build(tc *trip.Context, history []trip.ChatTurn, budgetChars int) (payload string, truncated bool) {
	var sb strings.Builder

	if tc != nil {
		for _, s := range sections {
			body := s.render(tc)
			if body == "" {
				continue
			}
			sb.WriteString("## ")
			sb.WriteString(s.label)
			sb.WriteString("\n")
			sb.WriteString(body)
			sb.WriteString("\n")
		}
	}

	if turns := trip.LastTurns(history, b.historyTurns); len(turns) > 0 {
		sb.WriteString("## Recent conversation\n")
		for _, t := range turns {
			if t.Role == trip.RoleAssistant {
				sb.WriteString("Assistant: ")
			} else {
				sb.WriteString("User: ")
			}
			sb.WriteString(t.Content)
			sb.WriteString("\n")
		}
	}

	out, cut := Truncate(strings.TrimRight(sb.String(), "\n"), budgetChars)
	if cut {
		metrics.PromptTruncations.Inc()
	}
	return out, cut
}

// Truncate cuts s so that s plus TruncationMarker fits in limit runes.
// A limit smaller than the marker yields the marker cut to limit.
func Truncate(s string, limit int) (string, bool) {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}

	marker := []rune(TruncationMarker)
	if limit <= len(marker) {
		return string(marker[:limit]), true
	}

	keep := limit - len(marker)
	return string([]rune(s)[:keep]) + TruncationMarker, true
}
