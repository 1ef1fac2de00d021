// README: Money value object; amounts are integer minor units (cents).
package types

const DefaultCurrency = "USD"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func Cents(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}
