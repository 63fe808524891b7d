package helpers

import (
	"time"

	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type CreateAuctionRequest struct {
	ProductID       string          `json:"product_id" binding:"required"`
	ListPrice       int64           `json:"list_price" binding:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StartTime       *time.Time      `json:"start_time"`
	EndTime         time.Time       `json:"end_time" binding:"required"`
}

type BidResponse struct {
	BidID      string `json:"bid_id"`
	AuctionID  string `json:"auction_id"`
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
	Sequence   int64  `json:"sequence"`
	PlacedAt   string `json:"placed_at"`
	CurrentBid int64  `json:"current_bid,omitempty"`
}

type AuctionResponse struct {
	AuctionID    string `json:"auction_id"`
	ProductID    string `json:"product_id"`
	Status       string `json:"status"`
	StartPrice   int64  `json:"start_price"`
	CurrentBid   int64  `json:"current_bid"`
	LeaderID     string `json:"leader_id,omitempty"`
	BidCount     int64  `json:"bid_count"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	WinnerID     string `json:"winner_id,omitempty"`
	WinningBidID string `json:"winning_bid_id,omitempty"`
}

type TimeRemainingResponse struct {
	AuctionID   string `json:"auction_id"`
	Status      string `json:"status"`
	StartsInMs  int64  `json:"starts_in_ms"`
	RemainingMs int64  `json:"remaining_ms"`
	EndTime     string `json:"end_time"`
}

// NewBidResponse converts a ledger entry for the wire
func NewBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    b.Amount,
		Sequence:  b.Sequence,
		PlacedAt:  b.PlacedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewAuctionResponse converts auction state for the wire; winner fields are
// only set once the auction has ENDED
func NewAuctionResponse(a model.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:  a.AuctionID,
		ProductID:  a.ProductID,
		Status:     string(a.Status),
		StartPrice: a.StartPrice,
		CurrentBid: a.CurrentBid,
		LeaderID:   a.LeaderID,
		BidCount:   a.BidCount,
		StartTime:  a.StartTime.UTC().Format(time.RFC3339),
		EndTime:    a.EndTime.UTC().Format(time.RFC3339),
	}
	result := model.ResultOf(a)
	resp.WinnerID = result.WinnerID
	resp.WinningBidID = result.WinningBidID
	return resp
}
