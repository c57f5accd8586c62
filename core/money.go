package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MoneyMaxDigits     = 10
	MoneyDecimalPlaces = 2
)

var (
	ErrMoneyNotString     = errors.New("money must be a decimal string")
	ErrMoneyInvalid       = errors.New("a valid number is required")
	ErrMoneyTooManyPlaces = fmt.Errorf("ensure that there are no more than %d decimal places", MoneyDecimalPlaces)
	ErrMoneyTooManyDigits = fmt.Errorf("ensure that there are no more than %d digits in total", MoneyMaxDigits)

	maxWholePart = decimal.New(1, MoneyMaxDigits-MoneyDecimalPlaces)
)

// Money is a fixed-point amount rendered with two fractional digits. On the
// wire it is always a JSON string.
type Money struct {
	d decimal.Decimal
}

func ParseMoney(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Money{}, ErrMoneyInvalid
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Money{}, ErrMoneyInvalid
	}
	if !d.Equal(d.Truncate(MoneyDecimalPlaces)) {
		return Money{}, ErrMoneyTooManyPlaces
	}
	if d.Abs().Truncate(0).GreaterThanOrEqual(maxWholePart) {
		return Money{}, ErrMoneyTooManyDigits
	}
	return Money{d: d}, nil
}

func MustMoney(raw string) Money {
	m, err := ParseMoney(raw)
	if err != nil {
		panic(fmt.Sprintf("core: invalid money literal %q: %v", raw, err))
	}
	return m
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) String() string { return m.d.StringFixed(MoneyDecimalPlaces) }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) Equal(other Money) bool { return m.d.Equal(other.d) }

func (m Money) Add(other Money) Money { return Money{d: m.d.Add(other.d)} }

func (m Money) Mul(quantity int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(quantity)))}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrMoneyNotString
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	m.d = d
	return nil
}
