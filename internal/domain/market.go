package domain

import "time"

// MarketStatus represents the lifecycle state of a market. A market starts
// Active and transitions exactly once to Resolved or Cancelled; both are
// terminal.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Side identifies which half of a binary market a stake backs.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two accepted sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Outcome is the declared result of a market. Pending means no result has
// been declared yet and is never a valid resolution value.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeYes     Outcome = "yes"
	OutcomeNo      Outcome = "no"
)

// Valid reports whether o is a declarable resolution value.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Market is a single binary proposition with a staking deadline and two
// pari-mutuel pools. All amounts are integers in the smallest value unit;
// fee rates are basis points (10000 bp = 100%).
type Market struct {
	ID          uint64       `json:"id"`
	Question    string       `json:"question"`
	Description string       `json:"description,omitempty"`
	Creator     string       `json:"creator"`
	CreatedAt   time.Time    `json:"created_at"`
	EndTime     time.Time    `json:"end_time"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	Status      MarketStatus `json:"status"`
	Outcome     Outcome      `json:"outcome"`

	YesTotal int64 `json:"yes_total"`
	NoTotal  int64 `json:"no_total"`
	Total    int64 `json:"total"` // always YesTotal + NoTotal

	// CreatorFeeBps is fixed at creation. PlatformFeeBps is snapshotted from
	// the ledger's global rate at resolution time so payouts stay stable even
	// if an admin changes the global rate afterwards; it is zero while the
	// market is Active.
	CreatorFeeBps  int64 `json:"creator_fee_bps"`
	PlatformFeeBps int64 `json:"platform_fee_bps"`

	// Fee amounts excluded from the winners' redistribution, accrued at
	// resolution and moved only by an explicit administrative sweep.
	PlatformFeeAccrued int64 `json:"platform_fee_accrued"`
	CreatorFeeAccrued  int64 `json:"creator_fee_accrued"`
	FeesSwept          bool  `json:"fees_swept"`

	CancelReason string `json:"cancel_reason,omitempty"`

	// Participants holds every account that has staked, in first-stake order.
	// Used only by the cancellation refund sweep.
	Participants []string `json:"participants,omitempty"`
}

// ParticipantBet is one account's position in one market. Amounts only grow
// while the market is Active; Withdrawn flips to true permanently when a
// payout or refund is released.
type ParticipantBet struct {
	MarketID  uint64 `json:"market_id"`
	Account   string `json:"account"`
	YesAmount int64  `json:"yes_amount"`
	NoAmount  int64  `json:"no_amount"`
	Withdrawn bool   `json:"withdrawn"`
}

// Staked returns the participant's total stake across both sides.
func (b ParticipantBet) Staked() int64 {
	return b.YesAmount + b.NoAmount
}

// Odds is the implied probability of each side in basis points. The two
// values sum to at most 10000; an empty market reports 5000/5000.
type Odds struct {
	YesBps int64 `json:"yes_bps"`
	NoBps  int64 `json:"no_bps"`
}

// FailedPayout records a payout or refund whose state was committed (the
// withdrawn flag set) but whose outbound transfer failed. It is cleared only
// through the operator recovery path; the flag is never unset.
type FailedPayout struct {
	MarketID uint64    `json:"market_id"`
	Account  string    `json:"account"`
	Amount   int64     `json:"amount"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// RefundFailure is one participant's failed refund inside a cancellation
// sweep. The sweep skips and continues, so a report may carry several.
type RefundFailure struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Err     string `json:"error"`
}

// CancelReport summarises a cancellation sweep: how many refunds were issued
// and which transfers failed.
type CancelReport struct {
	MarketID uint64          `json:"market_id"`
	Refunded int             `json:"refunded"`
	Failures []RefundFailure `json:"failures,omitempty"`
}

// LedgerState is the process-wide administrative state of the ledger,
// persisted so a restarted service resumes identifier allocation and fee
// parameters where it left off.
type LedgerState struct {
	NextMarketID   uint64   `json:"next_market_id"`
	PlatformFeeBps int64    `json:"platform_fee_bps"`
	MinStake       int64    `json:"min_stake"`
	FeeRecipient   string   `json:"fee_recipient"`
	Authorities    []string `json:"authorities"`
}
