package bidding

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// QueryService serves read-only projections of auctions. Every read settles
// due lifecycle transitions first, so an auction read after its end time is
// reported ENDED even before the background sweep runs.
type QueryService struct {
	repo repository.AuctionDB
	settings
}

// TimeRemaining describes where an auction stands relative to its clock
type TimeRemaining struct {
	AuctionID string
	Status    model.AuctionStatus
	StartsIn  time.Duration
	Remaining time.Duration
	EndTime   time.Time
}

// LeaderboardEntry is a bidder's best accepted bid
type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	BidID     string    `json:"bid_id"`
	PlacedAt  time.Time `json:"placed_at"`
	BidsCount int       `json:"bids_count"`
}

// NewQueryService creates a new QueryService instance
func NewQueryService(repo repository.AuctionDB, opts ...Option) *QueryService {
	return &QueryService{
		repo:     repo,
		settings: newSettings(repo, opts),
	}
}

func (q *QueryService) state(ctx context.Context, auctionID string) (model.Auction, error) {
	if strings.TrimSpace(auctionID) == "" {
		return model.Auction{}, fmt.Errorf("query: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	state, err := settledState(ctx, q.repo, q.clock, auctionID, q.now())
	if err != nil {
		return model.Auction{}, fmt.Errorf("query: failed to read auction %s: %w", auctionID, err)
	}
	return state, nil
}

// GetCurrentState returns the auction's current price, leader and status
func (q *QueryService) GetCurrentState(ctx context.Context, auctionID string) (model.Auction, error) {
	return q.state(ctx, auctionID)
}

// GetBidHistory returns the auction's ledger in placement order
func (q *QueryService) GetBidHistory(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := q.state(ctx, auctionID); err != nil {
		return nil, err
	}

	bids, err := q.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query: failed to get bids for auction %s: %w", auctionID, err)
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Sequence < bids[j].Sequence })
	return bids, nil
}

// GetTimeRemaining reports how long until the auction starts or ends
func (q *QueryService) GetTimeRemaining(ctx context.Context, auctionID string) (TimeRemaining, error) {
	now := q.now()
	state, err := q.state(ctx, auctionID)
	if err != nil {
		return TimeRemaining{}, err
	}

	tr := TimeRemaining{AuctionID: state.AuctionID, Status: state.Status, EndTime: state.EndTime}
	switch state.Status {
	case model.StatusPending:
		tr.StartsIn = state.StartTime.Sub(now)
		tr.Remaining = state.EndTime.Sub(now)
	case model.StatusActive:
		tr.Remaining = state.EndTime.Sub(now)
	}
	if tr.StartsIn < 0 {
		tr.StartsIn = 0
	}
	if tr.Remaining < 0 {
		tr.Remaining = 0
	}
	return tr, nil
}

// GetLeaderboard ranks bidders by their highest accepted bid. limit <= 0 returns all.
func (q *QueryService) GetLeaderboard(ctx context.Context, auctionID string, limit int) ([]LeaderboardEntry, error) {
	bids, err := q.GetBidHistory(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	best := make(map[string]*LeaderboardEntry)
	for _, b := range bids {
		e, ok := best[b.UserID]
		if !ok {
			e = &LeaderboardEntry{UserID: b.UserID}
			best[b.UserID] = e
		}
		e.BidsCount++
		// ledger amounts strictly increase, so the latest bid is the user's best
		e.Amount, e.BidID, e.PlacedAt = b.Amount, b.BidID, b.PlacedAt
	}

	entries := make([]LeaderboardEntry, 0, len(best))
	for _, e := range best {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Amount > entries[j].Amount })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
