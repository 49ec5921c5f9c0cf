package domain

// Account is an agent's trading record across a simulation.
type Account struct {
	AgentID     string `json:"agent"`
	Holdings    int    `json:"holdings"`
	Profit      int64  `json:"profit"`
	Submissions int    `json:"submissions"`
	Volume      int    `json:"volume"`
}

// Record applies a fill to the account. Buying adds to holdings and
// costs price × quantity; selling does the reverse.
func (a *Account) Record(side Side, price Price, quantity int) {
	a.Holdings += side.Sign() * quantity
	a.Profit -= int64(side.Sign()) * int64(price) * int64(quantity)
	a.Volume += quantity
}

// Liquidation is the profit the account would have if its holdings were
// valued at price.
func (a Account) Liquidation(price Price) int64 {
	return a.Profit + int64(a.Holdings)*int64(price)
}
