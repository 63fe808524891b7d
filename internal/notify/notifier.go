package notify

import (
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
)

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notify

// Notifier receives the result of every auction that reaches ENDED.
// Delivery is at-least-once; receivers deduplicate on AuctionID.
type Notifier interface {
	AuctionEnded(ctx context.Context, result model.AuctionResult) error
}

// LogNotifier writes auction results to the structured log
type LogNotifier struct{}

// NewLogNotifier returns a notifier that only logs
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

// AuctionEnded logs the winner, or the absence of one
func (LogNotifier) AuctionEnded(_ context.Context, result model.AuctionResult) error {
	fields := map[string]any{
		"auction_id": result.AuctionID,
		"product_id": result.ProductID,
		"ended_at":   result.EndedAt,
	}
	if result.WinningBidID == "" {
		utils.Info("auction ended without bids", fields)
		return nil
	}
	fields["winning_bid_id"] = result.WinningBidID
	fields["winner_id"] = result.WinnerID
	fields["amount"] = result.Amount
	utils.Info("auction ended", fields)
	return nil
}
