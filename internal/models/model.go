package models

import "time"

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusPending   AuctionStatus = "PENDING"
	StatusActive    AuctionStatus = "ACTIVE"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions or bids are possible.
func (s AuctionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// BidStatus is always ACCEPTED for persisted bids; rejected bids are never stored.
type BidStatus string

const BidAccepted BidStatus = "ACCEPTED"

// Auction is the mutable summary of a time-bounded sale of one product.
// Amounts are minor currency units.
type Auction struct {
	AuctionID    string        `json:"auction_id"`
	ProductID    string        `json:"product_id"`
	StartPrice   int64         `json:"start_price"`
	CurrentBid   int64         `json:"current_bid"`
	LeaderID     string        `json:"leader_id,omitempty"`
	LeadingBidID string        `json:"leading_bid_id,omitempty"`
	BidCount     int64         `json:"bid_count"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Status       AuctionStatus `json:"status"`
	Version      int64         `json:"version"`
	Notified     bool          `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// HasLeader reports whether at least one bid was accepted.
func (a Auction) HasLeader() bool {
	return a.BidCount > 0 && a.LeaderID != ""
}

// Open reports whether bids placed at t may be admitted.
func (a Auction) Open(t time.Time) bool {
	return a.Status == StatusActive && !t.Before(a.StartTime) && t.Before(a.EndTime)
}

// Bid is an immutable entry in an auction's ledger
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Status    BidStatus `json:"status"`
	PlacedAt  time.Time `json:"placed_at"`
}

// AuctionResult is handed to downstream order creation once an auction ends.
type AuctionResult struct {
	AuctionID    string        `json:"auction_id"`
	ProductID    string        `json:"product_id"`
	Status       AuctionStatus `json:"status"`
	WinningBidID string        `json:"winning_bid_id,omitempty"`
	WinnerID     string        `json:"winner_id,omitempty"`
	Amount       int64         `json:"amount"`
	EndedAt      time.Time     `json:"ended_at"`
}

// ResultOf builds the end-of-auction result from a terminal auction.
func ResultOf(a Auction) AuctionResult {
	res := AuctionResult{
		AuctionID: a.AuctionID,
		ProductID: a.ProductID,
		Status:    a.Status,
		EndedAt:   a.EndTime,
	}
	if a.Status == StatusEnded && a.HasLeader() {
		res.WinningBidID = a.LeadingBidID
		res.WinnerID = a.LeaderID
		res.Amount = a.CurrentBid
	}
	return res
}
