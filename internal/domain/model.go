// Package domain contains the pure business types of the ledger core.
// It has no infrastructure imports beyond the money arithmetic type —
// everything that touches storage, HTTP, or timers lives in internal/infra.
package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Obligation Types ───────────────────────────────────────────────────────

// ObligationKind distinguishes which side of the obligation the local user
// is on.
type ObligationKind string

const (
	// KindLoan is money the local user lent out — the counterparty owes
	// the user, and incoming transfers pay it down.
	KindLoan ObligationKind = "LOAN"

	// KindDebt is money the local user owes — outgoing transfers pay it
	// down.
	KindDebt ObligationKind = "DEBT"
)

// Valid reports whether k is a known obligation kind.
func (k ObligationKind) Valid() bool {
	return k == KindLoan || k == KindDebt
}

// InterestKind selects how interest accrues on an open balance.
type InterestKind string

const (
	InterestNone   InterestKind = "NONE"
	InterestDaily  InterestKind = "DAILY"  // percent of balance per day, prorated
	InterestWeekly InterestKind = "WEEKLY" // percent of balance per week, prorated
	InterestFlat   InterestKind = "FLAT"   // fixed amount per whole elapsed day
	InterestAPR    InterestKind = "APR"    // percent of balance per 365-day year, prorated
)

// InterestPolicy describes the interest terms attached to an obligation.
// Rate is a percentage for the prorated kinds and a flat currency amount
// per day for InterestFlat.
type InterestPolicy struct {
	Kind InterestKind    `json:"kind"`
	Rate decimal.Decimal `json:"rate"`
}

// EntryKind classifies a history entry on an obligation.
type EntryKind string

const (
	EntryRepayment EntryKind = "REPAYMENT"
	EntryIncrease  EntryKind = "INCREASE"
)

// Repayment is one append-only history entry: either an actual repayment
// or a principal increase recorded for traceability.
type Repayment struct {
	Kind      EntryKind       `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Note      string          `json:"note,omitempty"`
	Automatic bool            `json:"automatic"`
}

// Obligation is a tracked debt or loan record. The ledger service is the
// sole owner; everything handed out of the service is a copy.
type Obligation struct {
	ID               string          `json:"id"`
	Kind             ObligationKind  `json:"kind"`
	CounterpartyID   int64           `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	Principal        decimal.Decimal `json:"principal"`
	Balance          decimal.Decimal `json:"balance"`
	Interest         InterestPolicy  `json:"interest"`
	LastInterestAt   time.Time       `json:"last_interest_at"`
	Frozen           bool            `json:"frozen"`
	DueAt            *time.Time      `json:"due_at,omitempty"`
	Repayments       []Repayment     `json:"repayments"`
	Completed        bool            `json:"completed"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Notes            string          `json:"notes,omitempty"`

	// Enrichment metadata: counterparty last-seen time and when we last
	// asked the remote API about it.
	LastActivityAt    *time.Time `json:"last_activity_at,omitempty"`
	ActivityCheckedAt *time.Time `json:"activity_checked_at,omitempty"`
}

// CompletionEpsilon is the residual balance below which an obligation is
// considered settled (0.01 currency units).
var CompletionEpsilon = decimal.New(1, -2)

// Settled reports whether the outstanding balance is at or below the
// completion epsilon.
func (o *Obligation) Settled() bool {
	return o.Balance.LessThanOrEqual(CompletionEpsilon)
}

// ─── Counterparty Names ─────────────────────────────────────────────────────

var placeholderRe = regexp.MustCompile(`^\[\d+\]$`)

// PlaceholderName encodes an unresolved counterparty id as a display name.
// Enrichment replaces it with the real profile name asynchronously.
func PlaceholderName(counterpartyID int64) string {
	return fmt.Sprintf("[%d]", counterpartyID)
}

// IsPlaceholderName reports whether name is still the id-encoding
// placeholder produced by PlaceholderName.
func IsPlaceholderName(name string) bool {
	return name == "" || placeholderRe.MatchString(name)
}

// ─── Severity ───────────────────────────────────────────────────────────────

// Severity grades alerts and user notifications.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityLow     Severity = "LOW"
	SeverityMedium  Severity = "MEDIUM"
	SeverityHigh    Severity = "HIGH"
)
