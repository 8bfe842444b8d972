// Package alerts derives due-date and inactivity alerts from obligation
// state. Evaluation is pure: no I/O, no hidden state — the API layer
// calls it on demand and the overlay renders the result.
package alerts

import (
	"fmt"
	"time"

	"github.com/tornsidekick/sidekick/internal/domain"
)

// Thresholds for due-date and inactivity grading.
const (
	dueSoonMedium = 3 * 24 * time.Hour
	dueSoonLow    = 7 * 24 * time.Hour
	inactiveAfter = 7 * 24 * time.Hour
)

// Kind classifies an alert.
type Kind string

const (
	KindOverdue  Kind = "OVERDUE"
	KindDueSoon  Kind = "DUE_SOON"
	KindInactive Kind = "INACTIVE"
)

// Alert is one transient advisory derived from an obligation.
type Alert struct {
	ObligationID string          `json:"obligation_id"`
	Kind         Kind            `json:"kind"`
	Severity     domain.Severity `json:"severity"`
	Message      string          `json:"message"`
}

// For evaluates all alerts for one obligation. Due-date alerts come
// first, the inactivity alert last; none suppresses another. Completed
// obligations never alert.
func For(o domain.Obligation, now time.Time) []Alert {
	if o.Completed {
		return nil
	}

	var out []Alert
	if o.DueAt != nil {
		switch until := o.DueAt.Sub(now); {
		case until < 0:
			days := int(now.Sub(*o.DueAt) / (24 * time.Hour))
			out = append(out, Alert{
				ObligationID: o.ID,
				Kind:         KindOverdue,
				Severity:     domain.SeverityHigh,
				Message:      fmt.Sprintf("%s: overdue by %d days", o.CounterpartyName, days),
			})
		case until <= dueSoonMedium:
			out = append(out, Alert{
				ObligationID: o.ID,
				Kind:         KindDueSoon,
				Severity:     domain.SeverityMedium,
				Message:      fmt.Sprintf("%s: due in %d days", o.CounterpartyName, daysUntil(until)),
			})
		case until <= dueSoonLow:
			out = append(out, Alert{
				ObligationID: o.ID,
				Kind:         KindDueSoon,
				Severity:     domain.SeverityLow,
				Message:      fmt.Sprintf("%s: due in %d days", o.CounterpartyName, daysUntil(until)),
			})
		}
	}

	if o.LastActivityAt != nil {
		if age := now.Sub(*o.LastActivityAt); age >= inactiveAfter {
			out = append(out, Alert{
				ObligationID: o.ID,
				Kind:         KindInactive,
				Severity:     domain.SeverityLow,
				Message:      fmt.Sprintf("%s: inactive for %d days", o.CounterpartyName, int(age/(24*time.Hour))),
			})
		}
	}
	return out
}

// ForAll evaluates alerts across many obligations, preserving input order.
func ForAll(obligations []domain.Obligation, now time.Time) []Alert {
	var out []Alert
	for _, o := range obligations {
		out = append(out, For(o, now)...)
	}
	return out
}

func daysUntil(d time.Duration) int {
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
