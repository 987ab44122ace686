package ledger

import (
	"math/big"

	"github.com/outcomebet/paribet/internal/domain"
)

// bpsDenominator is the basis-point scale: 10000 bp = 100%.
const bpsDenominator = 10000

// FeeAmount returns floor(pool * rateBps / 10000). Both operands are
// non-negative, so truncating division is floor division. The product can
// exceed int64 for large pools, so the computation runs in big arithmetic;
// the quotient always fits since rateBps is capped below the denominator.
func FeeAmount(pool, rateBps int64) int64 {
	fee := new(big.Int).Mul(big.NewInt(pool), big.NewInt(rateBps))
	fee.Quo(fee, big.NewInt(bpsDenominator))
	return fee.Int64()
}

// Payout computes one participant's entitlement from a resolved market:
// their winning-side stake returned in full, plus a floor-rounded
// proportional share of the losing pool net of fees. It returns zero when
// the market is not resolved or the participant holds no winning stake.
//
// Fees come out of the losing pool only, never a winner's principal. Both
// rates are capped at 1000 bps, so the net pool is never negative. Rounding
// dust from the floored shares stays in custody as unclaimed residual,
// bounded by one unit per winner.
func Payout(m *domain.Market, b *domain.ParticipantBet) int64 {
	if m.Status != domain.MarketStatusResolved {
		return 0
	}

	var winStake, winningPool, losingPool int64
	switch m.Outcome {
	case domain.OutcomeYes:
		winStake, winningPool, losingPool = b.YesAmount, m.YesTotal, m.NoTotal
	case domain.OutcomeNo:
		winStake, winningPool, losingPool = b.NoAmount, m.NoTotal, m.YesTotal
	default:
		return 0
	}
	if winStake == 0 || winningPool == 0 {
		return 0
	}

	netLosing := losingPool - FeeAmount(losingPool, m.PlatformFeeBps) - FeeAmount(losingPool, m.CreatorFeeBps)

	// netLosing * winStake can exceed int64 for large pools; do the share
	// computation in big arithmetic. The quotient always fits: it is at most
	// netLosing.
	share := new(big.Int).Mul(big.NewInt(netLosing), big.NewInt(winStake))
	share.Quo(share, big.NewInt(winningPool))

	return winStake + share.Int64()
}

// Refund computes a cancelled market's entitlement: the participant's full
// stake on both sides, no fee deduction.
func Refund(b *domain.ParticipantBet) int64 {
	return b.YesAmount + b.NoAmount
}

// OddsOf returns the implied odds of each side in basis points, defaulting
// to an even 5000/5000 split for an empty market.
func OddsOf(yesTotal, noTotal int64) domain.Odds {
	total := yesTotal + noTotal
	if total == 0 {
		return domain.Odds{YesBps: 5000, NoBps: 5000}
	}
	// Same overflow concern as FeeAmount: a side total times 10000 can
	// exceed int64.
	yes := new(big.Int).Mul(big.NewInt(yesTotal), big.NewInt(bpsDenominator))
	yes.Quo(yes, big.NewInt(total))
	no := new(big.Int).Mul(big.NewInt(noTotal), big.NewInt(bpsDenominator))
	no.Quo(no, big.NewInt(total))
	return domain.Odds{
		YesBps: yes.Int64(),
		NoBps:  no.Int64(),
	}
}
