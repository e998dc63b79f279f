// README: Common money value object used across modules.
package types

import "fmt"

// DefaultCurrency is used for fares and earnings when none is configured.
const DefaultCurrency = "USD"

type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// Add returns the sum of two amounts. The receiver's currency wins unless it is empty.
func (m Money) Add(o Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = o.Currency
	}
	return Money{Amount: m.Amount + o.Amount, Currency: cur}
}

func (m Money) String() string {
	if m.Currency == "" {
		return fmt.Sprintf("%d", m.Amount)
	}
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
