package models

import (
	"fmt"
	"strconv"
	"strings"
)

// MoneyScale is the number of Money units per currency unit (four decimal places).
const MoneyScale = 10000

// Money is a fixed-scale amount in ten-thousandths of a currency unit.
type Money int64

// ParseMoney parses a decimal string such as "0.0691". More than four fractional digits is an error.
func ParseMoney(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "-"), "+")

	whole, frac, _ := strings.Cut(raw, ".")
	if len(frac) > 4 {
		return 0, fmt.Errorf("amount %q exceeds 4 decimal places", raw)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, fmt.Errorf("amount %q is not a decimal number", raw)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac+strings.Repeat("0", 4-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", raw, err)
		}
	}
	m := Money(w*MoneyScale + f)
	if neg {
		m = -m
	}
	return m, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%04d", sign, v/MoneyScale, v%MoneyScale)
}

func (m Money) Float64() float64 {
	return float64(m) / MoneyScale
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMoney(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
