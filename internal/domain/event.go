package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Transaction Log Events ─────────────────────────────────────────────────
// The remote API delivers transaction-log entries as loosely shaped JSON.
// The field names below (category, title, data.sender, data.receiver,
// data.money, data.message, timestamp) are a black-box contract with the
// API — do not rename them.

// MoneyCategory is the log category carrying player-to-player transfers.
const MoneyCategory = "Money sending"

// TransactionLogEvent mirrors one raw entry of the remote transaction log.
type TransactionLogEvent struct {
	Category  string          `json:"category"`
	Title     string          `json:"title"`
	Data      TransactionData `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TransactionData is the payload of a money-transfer log entry.
type TransactionData struct {
	Sender   int64           `json:"sender,omitempty"`
	Receiver int64           `json:"receiver,omitempty"`
	Money    decimal.Decimal `json:"money"`
	Message  string          `json:"message,omitempty"`
}

// Direction tells which way money moved relative to the local user.
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
)

// PaymentEvent is the parsed, recognized form of a money-transfer event.
// Raw events are classified into this tagged form once, at the boundary;
// everything downstream switches on Direction instead of string-matching
// titles.
type PaymentEvent struct {
	Direction      Direction
	CounterpartyID int64
	Amount         decimal.Decimal
	Message        string
	Timestamp      time.Time
}

// SyntheticID returns the deterministic dedup key for this event:
// direction, counterparty, amount and the event's own timestamp. Two
// fetches of the same log entry always produce the same id.
func (p PaymentEvent) SyntheticID() string {
	return fmt.Sprintf("%s_%d_%s_%d",
		p.Direction, p.CounterpartyID, p.Amount.String(), p.Timestamp.Unix())
}

// TargetKind maps the money direction to the obligation kind it can pay
// down: incoming money settles loans the user gave out, outgoing money
// settles the user's own debts.
func (p PaymentEvent) TargetKind() ObligationKind {
	if p.Direction == DirectionReceived {
		return KindLoan
	}
	return KindDebt
}

// ClassifyEvent parses a raw log event into a PaymentEvent. It returns
// ok=false for anything that is not a well-formed money transfer: wrong
// category, unrecognized title, missing counterparty, or a non-positive
// amount. Malformed events are skipped, never fatal.
func ClassifyEvent(e TransactionLogEvent) (PaymentEvent, bool) {
	if e.Category != MoneyCategory {
		return PaymentEvent{}, false
	}

	title := strings.ToLower(e.Title)
	var (
		dir Direction
		cp  int64
	)
	switch {
	case strings.Contains(title, "receive"):
		dir, cp = DirectionReceived, e.Data.Sender
	case strings.Contains(title, "send"), strings.Contains(title, "sent"):
		dir, cp = DirectionSent, e.Data.Receiver
	default:
		return PaymentEvent{}, false
	}

	if cp == 0 || e.Data.Money.Sign() <= 0 || e.Timestamp == 0 {
		return PaymentEvent{}, false
	}

	return PaymentEvent{
		Direction:      dir,
		CounterpartyID: cp,
		Amount:         e.Data.Money,
		Message:        e.Data.Message,
		Timestamp:      time.Unix(e.Timestamp, 0),
	}, true
}

// ─── Counterparty Profiles ──────────────────────────────────────────────────

// CounterpartyProfile is the public profile shape returned by the remote
// API. Field names (name, last_action.timestamp) are part of the contract.
type CounterpartyProfile struct {
	Name       string `json:"name"`
	LastAction struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"last_action"`
}
