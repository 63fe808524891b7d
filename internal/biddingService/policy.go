package bidding

import (
	model "auction-engine/internal/models"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const defaultMaxCommitAttempts = 5

var (
	hundred  = decimal.NewFromInt(100)
	maxMoney = decimal.NewFromInt(math.MaxInt64)
)

// Policy holds the configurable admission rules
type Policy struct {
	// MinIncrement is the fixed minimum raise over the current bid, in minor units.
	MinIncrement int64
	// MinIncrementPercent is the minimum raise as a percentage of the current bid.
	// The larger of the two increments applies.
	MinIncrementPercent decimal.Decimal
	// PreventSelfOutbid rejects bids from the current leader.
	PreventSelfOutbid bool
	// MaxCommitAttempts bounds re-validation after compare-and-swap conflicts.
	MaxCommitAttempts int
	// MaxBid is the largest amount a single bid may carry; zero means no limit
	// below math.MaxInt64.
	MaxBid int64
}

// DefaultPolicy requires every bid to raise the price by at least one minor unit
func DefaultPolicy() Policy {
	return Policy{
		MinIncrement:        1,
		MinIncrementPercent: decimal.Zero,
		MaxCommitAttempts:   defaultMaxCommitAttempts,
	}
}

// Validate rejects policies that would let the floor stand still
func (p Policy) Validate() error {
	if p.MinIncrement < 0 || p.MinIncrementPercent.IsNegative() {
		return fmt.Errorf("policy: increments must not be negative")
	}
	if p.MinIncrement == 0 && !p.MinIncrementPercent.IsPositive() {
		return fmt.Errorf("policy: a fixed or percentage increment is required")
	}
	if p.MaxBid < 0 {
		return fmt.Errorf("policy: max bid must not be negative")
	}
	if p.MaxCommitAttempts < 1 {
		return fmt.Errorf("policy: max commit attempts must be at least 1")
	}
	return nil
}

// Increment returns the minimum raise over current. Percentages round up to the next minor unit.
func (p Policy) Increment(current int64) int64 {
	inc := p.MinIncrement
	if p.MinIncrementPercent.IsPositive() {
		pct := decimal.NewFromInt(current).Mul(p.MinIncrementPercent).Div(hundred).Ceil()
		if pct.GreaterThanOrEqual(maxMoney) {
			return math.MaxInt64
		}
		if pct.IntPart() > inc {
			inc = pct.IntPart()
		}
	}
	if inc < 1 {
		inc = 1
	}
	return inc
}

// MinimumNext is the smallest amount the auction accepts in its current state.
// It saturates at math.MaxInt64; once the current bid reaches that value no
// further bid is admissible.
func (p Policy) MinimumNext(a model.Auction) int64 {
	inc := p.Increment(a.CurrentBid)
	if a.CurrentBid > math.MaxInt64-inc {
		return math.MaxInt64
	}
	return a.CurrentBid + inc
}

// StartPriceFor applies a discount percentage to a product's list price,
// rounding down to the minor unit
func StartPriceFor(listPrice int64, discountPercent decimal.Decimal) (int64, error) {
	if listPrice < 0 {
		return 0, fmt.Errorf("list price must not be negative")
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThanOrEqual(hundred) {
		return 0, fmt.Errorf("discount must be in [0, 100)")
	}
	factor := hundred.Sub(discountPercent).Div(hundred)
	return decimal.NewFromInt(listPrice).Mul(factor).Floor().IntPart(), nil
}
