package bidding

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type settings struct {
	clock  *lifecycle.Clock
	policy Policy
	now    func() time.Time
}

// Option configures BiddingService and QueryService
type Option func(*settings)

// WithPolicy overrides the default admission policy
func WithPolicy(p Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithClock shares a lifecycle clock instead of creating one per service
func WithClock(c *lifecycle.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithNow replaces the wall clock, mainly for tests
func WithNow(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func newSettings(repo repository.AuctionDB, opts []Option) settings {
	s := settings{
		policy: DefaultPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = lifecycle.NewClock(repo, nil)
	}
	return s
}

// settledState reads an auction and applies any lifecycle transition that is due
func settledState(ctx context.Context, repo repository.AuctionDB, clock *lifecycle.Clock, auctionID string, now time.Time) (model.Auction, error) {
	state, err := repo.ReadState(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	state, _, err = clock.Settle(ctx, state, now)
	if err != nil {
		return model.Auction{}, err
	}
	return state, nil
}

// BiddingService admits bids and manages auction creation and cancellation
type BiddingService struct {
	repo repository.AuctionDB
	settings
}

// BidReceipt is returned for an accepted bid
type BidReceipt struct {
	Bid           model.Bid
	NewCurrentBid int64
}

// CreateAuctionInput describes a product being put up for auction
type CreateAuctionInput struct {
	ProductID       string
	ListPrice       int64
	DiscountPercent decimal.Decimal
	StartTime       time.Time // zero means now
	EndTime         time.Time
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	return &BiddingService{
		repo:     repo,
		settings: newSettings(repo, opts),
	}
}

// Policy returns the admission policy in effect
func (s *BiddingService) Policy() Policy { return s.policy }

// PlaceBid validates and atomically commits a user's bid for an auction
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount int64) (BidReceipt, error) {
	receipt, err := s.placeBid(ctx, auctionID, userID, amount)
	metrics.BidsTotal.WithLabelValues(outcomeOf(err)).Inc()
	return receipt, err
}

func (s *BiddingService) placeBid(ctx context.Context, auctionID, userID string, amount int64) (BidReceipt, error) {
	if strings.TrimSpace(auctionID) == "" || strings.TrimSpace(userID) == "" {
		return BidReceipt{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return BidReceipt{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if s.policy.MaxBid > 0 && amount > s.policy.MaxBid {
		return BidReceipt{}, fmt.Errorf("service: %w - bid amount above %d", biddingerrors.ErrInvalidBid, s.policy.MaxBid)
	}

	for attempt := 1; attempt <= s.policy.MaxCommitAttempts; attempt++ {
		now := s.now()
		state, err := settledState(ctx, s.repo, s.clock, auctionID, now)
		if err != nil {
			return BidReceipt{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}
		if err := s.admit(state, userID, amount, now); err != nil {
			return BidReceipt{}, err
		}

		bid := model.Bid{
			BidID:     utils.GenerateBidID(now),
			AuctionID: auctionID,
			UserID:    userID,
			Amount:    amount,
			Status:    model.BidAccepted,
			PlacedAt:  now,
		}

		updated, err := s.repo.CompareAndSwapBid(ctx, state, bid)
		switch {
		case err == nil:
			bid.Sequence = updated.BidCount
			bid.PlacedAt = updated.UpdatedAt
			return BidReceipt{Bid: bid, NewCurrentBid: updated.CurrentBid}, nil
		case errors.Is(err, biddingerrors.ErrConcurrencyConflict):
			metrics.CommitConflicts.Inc()
			utils.Debug("service: bid commit conflict, re-validating", map[string]any{
				"auction_id": auctionID,
				"user_id":    userID,
				"attempt":    attempt,
			})
			continue
		case errors.Is(err, biddingerrors.ErrAuctionClosed):
			return BidReceipt{}, fmt.Errorf("service: %w - auction %s closed before commit", biddingerrors.ErrAuctionClosed, auctionID)
		default:
			return BidReceipt{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, userID, err)
		}
	}

	// conflicts never surface; report the freshest floor so the bidder can retry
	state, err := settledState(ctx, s.repo, s.clock, auctionID, s.now())
	if err != nil {
		return BidReceipt{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
	}
	return BidReceipt{}, fmt.Errorf("service: auction %s contended: %w", auctionID,
		&biddingerrors.BidTooLowError{Minimum: s.policy.MinimumNext(state)})
}

// admit checks the admission preconditions in order against one snapshot
func (s *BiddingService) admit(state model.Auction, userID string, amount int64, now time.Time) error {
	if !state.Open(now) {
		return fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionClosed, state.AuctionID, state.Status)
	}
	if floor := s.policy.MinimumNext(state); amount < floor || amount <= state.CurrentBid {
		return fmt.Errorf("service: current bid is %d: %w", state.CurrentBid, &biddingerrors.BidTooLowError{Minimum: floor})
	}
	if s.policy.PreventSelfOutbid && state.HasLeader() && state.LeaderID == userID {
		return fmt.Errorf("service: %w - user %s", biddingerrors.ErrAlreadyLeading, userID)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeAccepted
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return metrics.OutcomeTooLow
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return metrics.OutcomeClosed
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return metrics.OutcomeInvalid
	case errors.Is(err, biddingerrors.ErrAlreadyLeading):
		return metrics.OutcomeAlreadyLeader
	default:
		return metrics.OutcomeError
	}
}

// CreateAuction opens an auction for a product marked for auction-style sale
func (s *BiddingService) CreateAuction(ctx context.Context, in CreateAuctionInput) (model.Auction, error) {
	now := s.now()
	if strings.TrimSpace(in.ProductID) == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidAuction)
	}
	startPrice, err := StartPriceFor(in.ListPrice, in.DiscountPercent)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: %w - %v", biddingerrors.ErrInvalidAuction, err)
	}
	start := in.StartTime.UTC()
	if in.StartTime.IsZero() {
		start = now
	}
	end := in.EndTime.UTC()
	if !end.After(start) {
		return model.Auction{}, fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	}
	if !end.After(now) {
		return model.Auction{}, fmt.Errorf("service: %w - end time already passed", biddingerrors.ErrInvalidAuction)
	}

	status := model.StatusPending
	if !now.Before(start) {
		status = model.StatusActive
	}

	auction := model.Auction{
		AuctionID:  utils.GenerateID(),
		ProductID:  in.ProductID,
		StartPrice: startPrice,
		CurrentBid: startPrice,
		StartTime:  start,
		EndTime:    end,
		Status:     status,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction for product %s: %w", in.ProductID, err)
	}
	return auction, nil
}

// CancelAuction moves a pending or active auction to CANCELLED
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if strings.TrimSpace(auctionID) == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	for attempt := 1; attempt <= s.policy.MaxCommitAttempts; attempt++ {
		now := s.now()
		state, err := settledState(ctx, s.repo, s.clock, auctionID, now)
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}
		if state.Status.Terminal() {
			return model.Auction{}, fmt.Errorf("service: %w - auction %s already %s", biddingerrors.ErrAuctionClosed, auctionID, state.Status)
		}

		cancelled, ok, err := s.repo.TransitionStatus(ctx, auctionID, state.Status, model.StatusCancelled, now)
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
		}
		if ok {
			metrics.Transitions.WithLabelValues(string(model.StatusCancelled)).Inc()
			return cancelled, nil
		}
	}
	return model.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, biddingerrors.ErrConcurrencyConflict)
}

// GetAuctionsByUser returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	now := s.now()
	for i, a := range auctions {
		settled, _, err := s.clock.Settle(ctx, a, now)
		if err != nil {
			return nil, fmt.Errorf("service: failed to settle auction %s: %w", a.AuctionID, err)
		}
		auctions[i] = settled
	}
	return auctions, nil
}
