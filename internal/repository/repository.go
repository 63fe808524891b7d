package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the auction state store and bid ledger.
// CompareAndSwapBid and TransitionStatus are the only mutation points for an
// existing auction; every implementation must apply each of them atomically.
// UpdatedAt never moves backwards: a committed bid is stamped with the later
// of its PlacedAt and the previous UpdatedAt, so ledger order and PlacedAt
// order agree.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	ReadState(ctx context.Context, auctionID string) (model.Auction, error)
	CompareAndSwapBid(ctx context.Context, expected model.Auction, bid model.Bid) (model.Auction, error)
	TransitionStatus(ctx context.Context, auctionID string, from, to model.AuctionStatus, at time.Time) (model.Auction, bool, error)
	MarkNotified(ctx context.Context, auctionID string) error
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	ListDue(ctx context.Context, now time.Time) ([]model.Auction, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu           sync.RWMutex
	auctions     map[string]model.Auction // key: auctionID -> value: auction state
	bids         map[string][]model.Bid   // key: auctionID -> value: ledger in sequence order
	openProducts map[string]string        // key: productID -> value: non-terminal auctionID
	userAuctions map[string][]string      // key: userID -> value: auctionIDs user has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Auction),
		bids:         make(map[string][]model.Bid),
		openProducts: make(map[string]string),
		userAuctions: make(map[string][]string),
	}
}

// CreateAuction stores a new auction; a product may hold only one open auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	if existing, ok := r.openProducts[auction.ProductID]; ok {
		return fmt.Errorf("create auction for product %s (open auction %s): %w", auction.ProductID, existing, biddingerrors.ErrAuctionExists)
	}

	r.auctions[auction.AuctionID] = auction
	if !auction.Status.Terminal() {
		r.openProducts[auction.ProductID] = auction.AuctionID
	}
	return nil
}

// ReadState returns a consistent snapshot of an auction
func (r *MemoryRepo) ReadState(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("read state for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// CompareAndSwapBid appends bid to the ledger and makes it the leading bid,
// provided the stored state still matches expected
func (r *MemoryRepo) CompareAndSwapBid(_ context.Context, expected model.Auction, bid model.Bid) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[expected.AuctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("swap bid for auction %s: %w", expected.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if current.Version != expected.Version || current.CurrentBid != expected.CurrentBid {
		return current, fmt.Errorf("swap bid for auction %s at version %d: %w", expected.AuctionID, expected.Version, biddingerrors.ErrConcurrencyConflict)
	}
	committedAt := latest(bid.PlacedAt, current.UpdatedAt)
	if !current.Open(bid.PlacedAt) || !current.Open(committedAt) {
		return current, fmt.Errorf("swap bid for auction %s: %w", expected.AuctionID, biddingerrors.ErrAuctionClosed)
	}
	bid.PlacedAt = committedAt

	bid.Sequence = current.BidCount + 1
	bid.Status = model.BidAccepted
	r.bids[current.AuctionID] = append(r.bids[current.AuctionID], bid)

	current.CurrentBid = bid.Amount
	current.LeaderID = bid.UserID
	current.LeadingBidID = bid.BidID
	current.BidCount = bid.Sequence
	current.Version++
	current.UpdatedAt = bid.PlacedAt
	r.auctions[current.AuctionID] = current

	r.trackUser(bid.UserID, current.AuctionID)
	return current, nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func (r *MemoryRepo) trackUser(userID, auctionID string) {
	for _, id := range r.userAuctions[userID] {
		if id == auctionID {
			return
		}
	}
	r.userAuctions[userID] = append(r.userAuctions[userID], auctionID)
}

// TransitionStatus moves an auction from one status to another at the given
// time. The returned
// bool is false when the auction was not in the from status; the state is
// returned unchanged in that case.
func (r *MemoryRepo) TransitionStatus(_ context.Context, auctionID string, from, to model.AuctionStatus, at time.Time) (model.Auction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, false, fmt.Errorf("transition auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if current.Status != from {
		return current, false, nil
	}

	current.Status = to
	current.Version++
	current.UpdatedAt = latest(at, current.UpdatedAt)
	r.auctions[auctionID] = current

	if to.Terminal() && r.openProducts[current.ProductID] == auctionID {
		delete(r.openProducts, current.ProductID)
	}
	return current, true, nil
}

// MarkNotified records that the end-of-auction notification was delivered
func (r *MemoryRepo) MarkNotified(_ context.Context, auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("mark auction %s notified: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	current.Notified = true
	r.auctions[auctionID] = current
	return nil
}

// GetBidsByAuction returns the ledger of an auction in sequence order
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return append([]model.Bid{}, r.bids[auctionID]...), nil
}

// ListDue returns auctions that need a lifecycle action at now
func (r *MemoryRepo) ListDue(_ context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []model.Auction
	for _, a := range r.auctions {
		switch {
		case a.Status == model.StatusPending && !now.Before(a.StartTime):
			due = append(due, a)
		case a.Status == model.StatusActive && !now.Before(a.EndTime):
			due = append(due, a)
		case a.Status == model.StatusEnded && !a.Notified:
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].EndTime.Equal(due[j].EndTime) {
			return due[i].EndTime.Before(due[j].EndTime)
		}
		return due[i].AuctionID < due[j].AuctionID
	})
	return due, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByUser(_ context.Context, userID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.userAuctions[userID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if a, exists := r.auctions[id]; exists {
			auctions = append(auctions, a)
		}
	}
	return auctions, nil
}
