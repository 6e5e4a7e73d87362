package stake

import (
	"math"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/pkg/errors"
)

const (
	// LegacyDec carries 18 fractional digits
	maxDecimals = 18

	// Anything with more integer digits cannot fit in a u64 base amount
	maxIntegerDigits = 20
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountOverflow = errors.New("amount does not fit in 64 bits")
)

// ScaleAmount converts a human readable token amount into base units,
// flooring any precision the mint cannot represent. Zero, negative and
// non-finite values are rejected.
func ScaleAmount(human float64, decimals uint8) (uint64, error) {
	if math.IsNaN(human) || math.IsInf(human, 0) {
		return 0, errors.Wrap(ErrInvalidAmount, "amount is not a finite number")
	}
	return ScaleAmountString(strconv.FormatFloat(human, 'f', -1, 64), decimals)
}

// ScaleAmountString is ScaleAmount for an exact decimal string such as
// "1.5". Digits beyond the mint's precision are floored away.
func ScaleAmountString(human string, decimals uint8) (uint64, error) {
	if decimals > maxDecimals {
		return 0, errors.Errorf("unsupported mint decimals: %d", decimals)
	}

	human = strings.TrimSpace(human)
	if len(human) == 0 {
		return 0, errors.Wrap(ErrInvalidAmount, "amount is empty")
	}
	if strings.HasPrefix(human, "-") {
		return 0, errors.Wrap(ErrInvalidAmount, "amount is negative")
	}

	integer, fraction, _ := strings.Cut(human, ".")
	if !isDigits(integer) || !isDigits(fraction) || len(integer)+len(fraction) == 0 {
		return 0, errors.Wrapf(ErrInvalidAmount, "cannot parse %q", human)
	}
	if len(strings.TrimLeft(integer, "0")) > maxIntegerDigits {
		return 0, ErrAmountOverflow
	}
	if len(fraction) > int(decimals) {
		fraction = fraction[:decimals]
	}

	normalized := integer
	if len(integer) == 0 {
		normalized = "0"
	}
	if len(fraction) > 0 {
		normalized += "." + fraction
	}

	value, err := sdkmath.LegacyNewDecFromStr(normalized)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "cannot parse %q", human)
	}

	scaled := value.MulInt(sdkmath.NewIntWithDecimal(1, int(decimals))).TruncateInt()
	if !scaled.IsUint64() {
		return 0, ErrAmountOverflow
	}
	if scaled.IsZero() {
		return 0, errors.Wrap(ErrInvalidAmount, "amount must be positive")
	}
	return scaled.Uint64(), nil
}

// FormatAmount renders base units as a human readable amount without
// trailing zeros.
func FormatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 || decimals > maxDecimals {
		return strconv.FormatUint(amount, 10)
	}

	value := sdkmath.LegacyNewDecFromIntWithPrec(sdkmath.NewIntFromUint64(amount), int64(decimals))
	s := strings.TrimRight(value.String(), "0")
	return strings.TrimSuffix(s, ".")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
