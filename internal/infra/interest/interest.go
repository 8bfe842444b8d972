// Package interest implements the interest engine: pure accrual math over
// an obligation's outstanding balance and its interest policy.
//
// Accrue is side-effect free; the ledger service owns the mutation of
// balances and accrual timestamps (see ApplyAll).
package interest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tornsidekick/sidekick/internal/domain"
)

// Accrual period lengths. APR uses a 365-day year.
const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

var hundred = decimal.NewFromInt(100)

// Accrue computes the interest owed on o for the time elapsed between
// o.LastInterestAt and now. It never returns a negative amount and never
// mutates o.
//
// Prorated kinds (DAILY, WEEKLY, APR) charge rate percent of the CURRENT
// balance per period, scaled linearly by elapsed time. FLAT charges the
// rate as a fixed fee once per whole elapsed day — never prorated.
func Accrue(o *domain.Obligation, now time.Time) decimal.Decimal {
	if o.Frozen || o.Interest.Kind == domain.InterestNone || o.Interest.Rate.Sign() <= 0 {
		return decimal.Zero
	}

	elapsed := now.Sub(o.LastInterestAt)
	if elapsed <= 0 {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch o.Interest.Kind {
	case domain.InterestDaily:
		amount = prorated(o.Balance, o.Interest.Rate, elapsed, day)
	case domain.InterestWeekly:
		amount = prorated(o.Balance, o.Interest.Rate, elapsed, week)
	case domain.InterestAPR:
		amount = prorated(o.Balance, o.Interest.Rate, elapsed, year)
	case domain.InterestFlat:
		wholeDays := int64(elapsed / day)
		amount = o.Interest.Rate.Mul(decimal.NewFromInt(wholeDays))
	default:
		return decimal.Zero
	}

	if amount.Sign() < 0 {
		return decimal.Zero
	}
	return amount
}

// prorated computes balance * (rate/100) * (elapsed/period) with a single
// division so rounding is applied exactly once.
func prorated(balance, rate decimal.Decimal, elapsed, period time.Duration) decimal.Decimal {
	num := balance.Mul(rate).Mul(decimal.NewFromInt(elapsed.Milliseconds()))
	den := decimal.NewFromInt(period.Milliseconds()).Mul(hundred)
	return num.Div(den)
}

// ApplyAll accrues interest on every non-frozen, non-completed obligation.
// Obligations that accrued a positive amount get the interest added to
// their balance and LastInterestAt moved to now; zero accruals leave the
// timestamp untouched so FLAT's whole-day floor keeps counting. Returns
// whether anything changed, so the caller can decide to persist.
func ApplyAll(obligations []*domain.Obligation, now time.Time) bool {
	changed := false
	for _, o := range obligations {
		if o.Frozen || o.Completed {
			continue
		}
		amount := Accrue(o, now)
		if amount.Sign() <= 0 {
			continue
		}
		o.Balance = o.Balance.Add(amount)
		o.LastInterestAt = now
		changed = true
	}
	return changed
}
