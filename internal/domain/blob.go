package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SettlementEntry is one participant's line in a settlement report.
type SettlementEntry struct {
	Account   string `json:"account"`
	YesAmount int64  `json:"yes_amount"`
	NoAmount  int64  `json:"no_amount"`
	Payout    int64  `json:"payout"`
}

// SettlementReport is the archived record of a market settlement: the final
// pools, the fee split, and every participant's entitlement at the moment
// the market left the Active state.
type SettlementReport struct {
	MarketID       uint64            `json:"market_id"`
	Question       string            `json:"question"`
	Status         MarketStatus      `json:"status"`
	Outcome        Outcome           `json:"outcome"`
	YesTotal       int64             `json:"yes_total"`
	NoTotal        int64             `json:"no_total"`
	PlatformFee    int64             `json:"platform_fee"`
	CreatorFee     int64             `json:"creator_fee"`
	CancelReason   string            `json:"cancel_reason,omitempty"`
	SettledAt      time.Time         `json:"settled_at"`
	Entitlements   []SettlementEntry `json:"entitlements"`
}

// SettlementArchiver writes settlement reports to long-term storage.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, report SettlementReport) error
}
