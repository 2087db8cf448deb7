package pricing

import (
	"errors"
	"math"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Bps is a rate expressed in basis points; 10000 equals 100%.
type Bps int64

// BpsScale is the basis-point denominator.
const BpsScale = 10000

// ErrAmountOverflow reports an amount that does not fit in int64 minor units.
var ErrAmountOverflow = errors.New("amount out of range")

// ApplyBps returns amount scaled by rate, rounded half away from zero to the nearest minor unit.
func ApplyBps(amount Money, rate Bps) (Money, error) {
	product, ok := mulMoney(amount, Money(rate))
	if !ok {
		return 0, ErrAmountOverflow
	}
	q := product / BpsScale
	r := product % BpsScale
	switch {
	case r*2 >= BpsScale:
		q++
	case r*2 <= -BpsScale:
		q--
	}
	return q, nil
}

func mulMoney(a, b Money) (Money, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	return c, c/b == a
}

func addMoney(a, b Money) (Money, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

func subMoney(a, b Money) (Money, bool) {
	s := a - b
	if (b > 0 && s > a) || (b < 0 && s < a) {
		return 0, false
	}
	return s, true
}

// sumMoney adds values left to right and reports false on the first overflow.
func sumMoney(values ...Money) (Money, bool) {
	var total Money
	for _, v := range values {
		var ok bool
		if total, ok = addMoney(total, v); !ok {
			return 0, false
		}
	}
	return total, true
}
