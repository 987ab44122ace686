package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/outcomebet/paribet/internal/domain"
)

func TestFeeAmount(t *testing.T) {
	tests := []struct {
		name    string
		pool    int64
		rateBps int64
		want    int64
	}{
		{"zero pool", 0, 1000, 0},
		{"zero rate", 1000, 0, 0},
		{"exact", 10000, 100, 100},
		{"floors down", 300, 100, 3},
		{"floors fraction", 999, 250, 24}, // 999*250/10000 = 24.975
		{"max rate", 300, 1000, 30},
		// pool * rateBps exceeds int64 here; the fee must still be exact.
		{"huge pool", 1 << 60, 1000, 115292150460684697},
		{"max pool", math.MaxInt64, 1000, math.MaxInt64 / 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FeeAmount(tt.pool, tt.rateBps))
		})
	}
}

func resolvedMarket(outcome domain.Outcome, yes, no, platformBps, creatorBps int64) *domain.Market {
	return &domain.Market{
		Status:         domain.MarketStatusResolved,
		Outcome:        outcome,
		YesTotal:       yes,
		NoTotal:        no,
		Total:          yes + no,
		PlatformFeeBps: platformBps,
		CreatorFeeBps:  creatorBps,
	}
}

func TestPayout(t *testing.T) {
	tests := []struct {
		name string
		m    *domain.Market
		b    domain.ParticipantBet
		want int64
	}{
		{
			name: "not resolved",
			m:    &domain.Market{Status: domain.MarketStatusActive},
			b:    domain.ParticipantBet{YesAmount: 100},
			want: 0,
		},
		{
			name: "cancelled",
			m:    &domain.Market{Status: domain.MarketStatusCancelled},
			b:    domain.ParticipantBet{YesAmount: 100},
			want: 0,
		},
		{
			name: "no winning stake",
			m:    resolvedMarket(domain.OutcomeYes, 100, 300, 100, 250),
			b:    domain.ParticipantBet{NoAmount: 300},
			want: 0,
		},
		{
			name: "spec scenario",
			m:    resolvedMarket(domain.OutcomeYes, 100, 300, 100, 250),
			b:    domain.ParticipantBet{YesAmount: 100},
			want: 390, // 100 + floor((300-3-7)*100/100)
		},
		{
			name: "no side wins",
			m:    resolvedMarket(domain.OutcomeNo, 300, 100, 100, 250),
			b:    domain.ParticipantBet{NoAmount: 100},
			want: 390,
		},
		{
			name: "no fees",
			m:    resolvedMarket(domain.OutcomeYes, 100, 300, 0, 0),
			b:    domain.ParticipantBet{YesAmount: 100},
			want: 400,
		},
		{
			name: "proportional share floors",
			m:    resolvedMarket(domain.OutcomeYes, 3, 100, 0, 0),
			b:    domain.ParticipantBet{YesAmount: 1},
			want: 34, // 1 + floor(100/3)
		},
		{
			name: "empty losing pool returns principal",
			m:    resolvedMarket(domain.OutcomeYes, 100, 0, 100, 250),
			b:    domain.ParticipantBet{YesAmount: 100},
			want: 100,
		},
		{
			name: "empty winning pool",
			m:    resolvedMarket(domain.OutcomeYes, 0, 300, 100, 250),
			b:    domain.ParticipantBet{NoAmount: 300},
			want: 0,
		},
		{
			name: "mixed position pays only winning side",
			m:    resolvedMarket(domain.OutcomeYes, 200, 200, 0, 0),
			b:    domain.ParticipantBet{YesAmount: 100, NoAmount: 50},
			want: 200, // 100 + floor(200*100/200)
		},
		{
			name: "large pools avoid overflow",
			m:    resolvedMarket(domain.OutcomeYes, 4_000_000_000_000, 4_000_000_000_000, 0, 0),
			b:    domain.ParticipantBet{YesAmount: 3_000_000_000_000},
			want: 6_000_000_000_000,
		},
		{
			// Losing pool large enough that pool * rateBps exceeds int64 in
			// the fee step. 1<<60 - 2*115292150460684697 leaves 922337203685477582
			// for the sole winner on top of their principal.
			name: "huge losing pool keeps fees exact",
			m:    resolvedMarket(domain.OutcomeYes, 1<<60, 1<<60, 1000, 1000),
			b:    domain.ParticipantBet{YesAmount: 1 << 60},
			want: 1<<60 + 922337203685477582,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Payout(tt.m, &tt.b))
		})
	}
}

// The redistributed portions never exceed the net losing pool, the dust is
// bounded by one unit per winner, and bigger stakes never earn smaller
// shares.
func TestPayoutProportionality(t *testing.T) {
	m := resolvedMarket(domain.OutcomeYes, 0, 997, 1000, 1000)
	stakes := []int64{13, 57, 110, 110, 710}
	for _, s := range stakes {
		m.YesTotal += s
	}
	m.Total = m.YesTotal + m.NoTotal

	netLosing := m.NoTotal - FeeAmount(m.NoTotal, 1000) - FeeAmount(m.NoTotal, 1000)

	var redistributed, prevShare int64
	prevStake := int64(0)
	for _, s := range stakes {
		b := domain.ParticipantBet{YesAmount: s}
		share := Payout(m, &b) - s
		assert.GreaterOrEqual(t, share, int64(0))
		if s >= prevStake {
			assert.GreaterOrEqual(t, share, prevShare)
		}
		redistributed += share
		prevStake, prevShare = s, share
	}

	assert.LessOrEqual(t, redistributed, netLosing)
	assert.LessOrEqual(t, netLosing-redistributed, int64(len(stakes)-1))
}

// Fee bound: for capped rates the combined fees never exceed the losing pool.
func TestFeeBound(t *testing.T) {
	for _, losing := range []int64{0, 1, 9, 300, 12345, 1 << 40, 1 << 60, math.MaxInt64} {
		platform := FeeAmount(losing, MaxPlatformFeeBps)
		creator := FeeAmount(losing, MaxCreatorFeeBps)
		assert.LessOrEqual(t, platform+creator, losing)
	}
}

func TestRefund(t *testing.T) {
	b := domain.ParticipantBet{YesAmount: 120, NoAmount: 45}
	assert.Equal(t, int64(165), Refund(&b))
	assert.Zero(t, Refund(&domain.ParticipantBet{}))
}

func TestOddsOf(t *testing.T) {
	tests := []struct {
		name     string
		yes, no  int64
		wantYes  int64
		wantNo   int64
	}{
		{"empty market defaults even", 0, 0, 5000, 5000},
		{"balanced", 100, 100, 5000, 5000},
		{"skewed", 100, 300, 2500, 7500},
		{"one sided", 500, 0, 10000, 0},
		{"floors", 1, 2, 3333, 6666},
		{"huge pools", 1 << 60, 3 * (1 << 60), 2500, 7500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			odds := OddsOf(tt.yes, tt.no)
			assert.Equal(t, tt.wantYes, odds.YesBps)
			assert.Equal(t, tt.wantNo, odds.NoBps)
		})
	}
}
