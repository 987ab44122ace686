package domain

import (
	"context"
	"time"
)

// Event names published on the signal bus.
const (
	EventMarketCreated   = "market_created"
	EventBetPlaced       = "bet_placed"
	EventMarketResolved  = "market_resolved"
	EventMarketCancelled = "market_cancelled"
	EventPayoutReleased  = "payout_released"
	EventPayoutFailed    = "payout_failed"
	EventFeesSwept       = "fees_swept"
)

// ChannelLedger is the pub/sub channel carrying all ledger events; the
// durable copy goes to StreamLedger.
const (
	ChannelLedger = "ch:ledger"
	StreamLedger  = "stream:ledger"
)

// LedgerEvent is the envelope published for every state change.
type LedgerEvent struct {
	ID        string    `json:"id"` // UUID for dedup
	Type      string    `json:"type"`
	MarketID  uint64    `json:"market_id"`
	Account   string    `json:"account,omitempty"`
	Side      Side      `json:"side,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SignalBus provides pub/sub and durable streams for ledger events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// StreamMessage is one entry read back from the durable event stream.
type StreamMessage struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// StreamReader reads historical entries from the durable event stream. Use
// "0" as lastID to read from the beginning.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
