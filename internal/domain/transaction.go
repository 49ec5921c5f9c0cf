package domain

// Transaction is an executed trade between one buy and one sell order.
type Transaction struct {
	MarketID   string    `json:"market"`
	Seq        uint64    `json:"seq"`
	Buyer      string    `json:"buyer"`
	Seller     string    `json:"seller"`
	Price      Price     `json:"price"`
	Quantity   int       `json:"quantity"`
	ExecutedAt TimeStamp `json:"time"`
}
