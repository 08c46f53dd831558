package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// satDecimals is the number of decimal places in one satoshi.
const satDecimals = 8

// ErrSubSatoshi is returned for BTC amounts finer than one satoshi.
var ErrSubSatoshi = errors.New("ledger: amount is finer than one satoshi")

// BTC converts satoshis to a BTC decimal.
func BTC(sats int64) decimal.Decimal {
	return decimal.New(sats, -satDecimals)
}

// SatsFromBTC converts a BTC decimal to satoshis. Amounts that do not land
// on a whole satoshi are rejected rather than rounded.
func SatsFromBTC(btc decimal.Decimal) (int64, error) {
	shifted := btc.Shift(satDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrSubSatoshi, btc.String())
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("ledger: amount %s out of range", btc.String())
	}
	return shifted.IntPart(), nil
}
