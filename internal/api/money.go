package api

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// maxMoney is the largest amount accepted, in currency units
var maxMoney = decimal.New(1, 12)

// Money is an amount in cents that travels as a decimal string ("15.00").
// Plain JSON numbers are accepted on input; more than two decimals are rejected.
type Money int64

func (m *Money) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q", raw)
	}
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("amount %q has more than two decimals", raw)
	}
	if d.Abs().GreaterThan(maxMoney) {
		return fmt.Errorf("amount %q exceeds %s", raw, maxMoney.String())
	}

	*m = Money(d.Shift(2).IntPart())
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m Money) String() string {
	return decimal.New(int64(m), -2).StringFixed(2)
}

// Cents returns the amount as int64 cents
func (m Money) Cents() int64 {
	return int64(m)
}

func moneyPtr(cents *int64) *Money {
	if cents == nil {
		return nil
	}
	m := Money(*cents)
	return &m
}
