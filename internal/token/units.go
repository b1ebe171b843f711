package token

import (
	"fmt"
	"math/big"
	"strings"

	"milestone-escrow-backend/internal/apperr"
)

// ToSmallestUnit converts a human decimal amount ("250.00") to the token's
// integer smallest-unit value. Integer fixed-point arithmetic only: a float
// conversion can silently misround settlement amounts.
func ToSmallestUnit(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty amount", apperr.ErrInvalidArgument)
	}
	if strings.HasPrefix(amount, "-") || strings.HasPrefix(amount, "+") {
		return nil, fmt.Errorf("%w: signed amount %q", apperr.ErrInvalidArgument, amount)
	}

	whole := amount
	frac := ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return nil, fmt.Errorf("%w: malformed amount %q", apperr.ErrInvalidArgument, amount)
		}
		if whole == "" && frac == "" {
			return nil, fmt.Errorf("%w: malformed amount %q", apperr.ErrInvalidArgument, amount)
		}
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("%w: malformed amount %q", apperr.ErrInvalidArgument, amount)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: amount %q exceeds token precision %d", apperr.ErrInvalidArgument, amount, decimals)
	}

	v, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed amount %q", apperr.ErrInvalidArgument, amount)
	}
	v.Mul(v, pow10(int(decimals)))

	if frac != "" {
		f, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("%w: malformed amount %q", apperr.ErrInvalidArgument, amount)
		}
		f.Mul(f, pow10(int(decimals)-len(frac)))
		v.Add(v, f)
	}
	return v, nil
}

// FromSmallestUnit renders a smallest-unit value back to a human decimal
// string with trailing zeros trimmed ("250000000" at 6 decimals -> "250").
func FromSmallestUnit(v *big.Int, decimals uint8) string {
	q, r := new(big.Int).QuoRem(v, pow10(int(decimals)), new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%0*s", decimals, r.String())
	frac = strings.TrimRight(frac, "0")
	return q.String() + "." + frac
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
