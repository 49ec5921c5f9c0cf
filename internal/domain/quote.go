package domain

// Quote is a snapshot of the best bid and ask of a market. A missing side
// is reported with HasBid/HasAsk false.
type Quote struct {
	Bid      Price
	HasBid   bool
	BidDepth int
	Ask      Price
	HasAsk   bool
	AskDepth int
	Time     TimeStamp
	// Seq increases with every quote a market publishes and is used to
	// discard notifications that arrive out of order.
	Seq uint64
}

// EmptyQuote is the quote a view holds before its first update.
func EmptyQuote() Quote {
	return Quote{Bid: NegInf, Ask: Inf}
}

// Defined reports whether both sides are present.
func (q Quote) Defined() bool {
	return q.HasBid && q.HasAsk
}

// Spread returns ask - bid, or false if either side is missing.
func (q Quote) Spread() (Price, bool) {
	if !q.Defined() {
		return 0, false
	}
	return q.Ask - q.Bid, true
}

// Midquote returns the average of bid and ask, or false if either side is
// missing.
func (q Quote) Midquote() (float64, bool) {
	if !q.Defined() {
		return 0, false
	}
	return (float64(q.Bid) + float64(q.Ask)) / 2, true
}

// NewerThan reports whether q was published after other.
func (q Quote) NewerThan(other Quote) bool {
	return q.Seq > other.Seq
}
