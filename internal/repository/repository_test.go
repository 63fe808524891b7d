package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Helper to create a new active Auction
func newAuction(auctionID, productID string, startPrice int64) model.Auction {
	return model.Auction{
		AuctionID:  auctionID,
		ProductID:  productID,
		StartPrice: startPrice,
		CurrentBid: startPrice,
		StartTime:  baseTime,
		EndTime:    baseTime.Add(time.Hour),
		Status:     model.StatusActive,
		Version:    1,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
}

// Helper to create a new Bid
func newBid(bidID, auctionID, userID string, amount int64, placedAt time.Time) model.Bid {
	return model.Bid{
		BidID:     bidID,
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		PlacedAt:  placedAt,
	}
}

func seededRepo(t *testing.T, auctions ...model.Auction) *MemoryRepo {
	t.Helper()
	repo := NewMemoryRepo()
	for _, a := range auctions {
		require.NoError(t, repo.CreateAuction(context.Background(), a))
	}
	return repo
}

// Test CreateAuction
func TestMemoryRepo_CreateAuction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := seededRepo(t, newAuction("a1", "p1", 100))

	tests := []struct {
		name    string
		auction model.Auction
		wantErr error
	}{
		{name: "new_product", auction: newAuction("a2", "p2", 100), wantErr: nil},
		{name: "duplicate_auction_id", auction: newAuction("a1", "p3", 100), wantErr: biddingerrors.ErrAuctionExists},
		{name: "product_with_open_auction", auction: newAuction("a3", "p1", 100), wantErr: biddingerrors.ErrAuctionExists},
		{name: "empty_auction_id", auction: newAuction("", "p4", 100), wantErr: biddingerrors.ErrInvalidAuction},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := repo.CreateAuction(ctx, tc.auction)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			got, err := repo.ReadState(ctx, tc.auction.AuctionID)
			require.NoError(t, err)
			require.Equal(t, tc.auction, got)
		})
	}

	t.Run("product_reusable_after_auction_ends", func(t *testing.T) {
		repo := seededRepo(t, newAuction("old", "p9", 100))
		_, ok, err := repo.TransitionStatus(ctx, "old", model.StatusActive, model.StatusEnded, baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, repo.CreateAuction(ctx, newAuction("new", "p9", 100)))
	})
}

// Test ReadState
func TestMemoryRepo_ReadState(t *testing.T) {
	t.Parallel()

	repo := seededRepo(t, newAuction("a1", "p1", 100))

	_, err := repo.ReadState(context.Background(), "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	got, err := repo.ReadState(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, int64(100), got.CurrentBid)
	require.Equal(t, int64(1), got.Version)
}

// Test CompareAndSwapBid
func TestMemoryRepo_CompareAndSwapBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inWindow := baseTime.Add(time.Minute)

	tests := []struct {
		name     string
		expected func(a model.Auction) model.Auction
		bid      model.Bid
		wantErr  error
	}{
		{
			name:     "matching_state",
			expected: func(a model.Auction) model.Auction { return a },
			bid:      newBid("b1", "a1", "u1", 150, inWindow),
		},
		{
			name:     "stale_version",
			expected: func(a model.Auction) model.Auction { a.Version--; return a },
			bid:      newBid("b1", "a1", "u1", 150, inWindow),
			wantErr:  biddingerrors.ErrConcurrencyConflict,
		},
		{
			name:     "stale_current_bid",
			expected: func(a model.Auction) model.Auction { a.CurrentBid = 50; return a },
			bid:      newBid("b1", "a1", "u1", 150, inWindow),
			wantErr:  biddingerrors.ErrConcurrencyConflict,
		},
		{
			name:     "placed_at_end_time",
			expected: func(a model.Auction) model.Auction { return a },
			bid:      newBid("b1", "a1", "u1", 150, baseTime.Add(time.Hour)),
			wantErr:  biddingerrors.ErrAuctionClosed,
		},
		{
			name:     "placed_before_start",
			expected: func(a model.Auction) model.Auction { return a },
			bid:      newBid("b1", "a1", "u1", 150, baseTime.Add(-time.Second)),
			wantErr:  biddingerrors.ErrAuctionClosed,
		},
		{
			name:     "unknown_auction",
			expected: func(a model.Auction) model.Auction { a.AuctionID = "nope"; return a },
			bid:      newBid("b1", "nope", "u1", 150, inWindow),
			wantErr:  biddingerrors.ErrAuctionNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			auction := newAuction("a1", "p1", 100)
			repo := seededRepo(t, auction)

			updated, err := repo.CompareAndSwapBid(ctx, tc.expected(auction), tc.bid)
			bids, listErr := repo.GetBidsByAuction(ctx, "a1")
			require.NoError(t, listErr)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Empty(t, bids, "rejected swap must not append to the ledger")
				state, _ := repo.ReadState(ctx, "a1")
				require.Equal(t, auction, state, "rejected swap must not mutate state")
				return
			}

			require.NoError(t, err)
			require.Equal(t, int64(150), updated.CurrentBid)
			require.Equal(t, "u1", updated.LeaderID)
			require.Equal(t, "b1", updated.LeadingBidID)
			require.Equal(t, int64(1), updated.BidCount)
			require.Equal(t, auction.Version+1, updated.Version)
			require.Len(t, bids, 1)
			require.Equal(t, int64(1), bids[0].Sequence)
			require.Equal(t, model.BidAccepted, bids[0].Status)
		})
	}

	t.Run("concurrent_swaps_on_same_version", func(t *testing.T) {
		t.Parallel()

		auction := newAuction("a1", "p1", 100)
		repo := seededRepo(t, auction)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				b := newBid(fmt.Sprintf("b%d", i), "a1", fmt.Sprintf("u%d", i), int64(200+i), inWindow)
				_, err := repo.CompareAndSwapBid(ctx, auction, b)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, biddingerrors.ErrConcurrencyConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, successes, "exactly one swap may win against a given version")
		require.Equal(t, 49, conflicts)
		bids, err := repo.GetBidsByAuction(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, bids, 1)
	})
}

// Test TransitionStatus
func TestMemoryRepo_TransitionStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := seededRepo(t, newAuction("a1", "p1", 100))

	ended, ok, err := repo.TransitionStatus(ctx, "a1", model.StatusActive, model.StatusEnded, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusEnded, ended.Status)
	require.Equal(t, int64(2), ended.Version)
	require.Equal(t, baseTime.Add(time.Minute), ended.UpdatedAt)

	again, ok, err := repo.TransitionStatus(ctx, "a1", model.StatusActive, model.StatusEnded, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "second transition from a stale status must not apply")
	require.Equal(t, ended, again)

	_, _, err = repo.TransitionStatus(ctx, "missing", model.StatusActive, model.StatusEnded, baseTime.Add(time.Minute))
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	// an earlier stamp never moves UpdatedAt backwards
	repo = seededRepo(t, newAuction("a2", "p2", 100))
	late, err := repo.ReadState(ctx, "a2")
	require.NoError(t, err)
	late, err = repo.CompareAndSwapBid(ctx, late, newBid("b1", "a2", "u1", 150, baseTime.Add(10*time.Minute)))
	require.NoError(t, err)
	cancelled, ok, err := repo.TransitionStatus(ctx, "a2", model.StatusActive, model.StatusCancelled, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, late.UpdatedAt, cancelled.UpdatedAt)
}

// A bid stamped before the last commit is recorded at the commit boundary,
// so sequence order and PlacedAt order never disagree
func TestMemoryRepo_CompareAndSwapBid_StampsCommitTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := seededRepo(t, newAuction("a1", "p1", 100))

	state, err := repo.ReadState(ctx, "a1")
	require.NoError(t, err)
	state, err = repo.CompareAndSwapBid(ctx, state, newBid("b1", "a1", "y", 150, baseTime.Add(3*time.Second)))
	require.NoError(t, err)

	// taken before b1 committed, applied after it
	state, err = repo.CompareAndSwapBid(ctx, state, newBid("b2", "a1", "x", 200, baseTime.Add(2*time.Second)))
	require.NoError(t, err)
	require.Equal(t, baseTime.Add(3*time.Second), state.UpdatedAt)

	bids, err := repo.GetBidsByAuction(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, []string{"y", "x"}, []string{bids[0].UserID, bids[1].UserID})
	require.Equal(t, baseTime.Add(3*time.Second), bids[1].PlacedAt)
	require.False(t, bids[1].PlacedAt.Before(bids[0].PlacedAt))
}

// Test ListDue
func TestMemoryRepo_ListDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	pendingDue := newAuction("pending-due", "p1", 100)
	pendingDue.Status = model.StatusPending

	pendingLater := newAuction("pending-later", "p2", 100)
	pendingLater.Status = model.StatusPending
	pendingLater.StartTime = baseTime.Add(2 * time.Hour)
	pendingLater.EndTime = baseTime.Add(3 * time.Hour)

	activeExpired := newAuction("active-expired", "p3", 100)
	activeRunning := newAuction("active-running", "p4", 100)
	activeRunning.EndTime = baseTime.Add(5 * time.Hour)

	endedUnnotified := newAuction("ended-unnotified", "p5", 100)
	endedUnnotified.Status = model.StatusEnded

	endedNotified := newAuction("ended-notified", "p6", 100)
	endedNotified.Status = model.StatusEnded
	endedNotified.Notified = true

	cancelled := newAuction("cancelled", "p7", 100)
	cancelled.Status = model.StatusCancelled

	repo := seededRepo(t, pendingDue, pendingLater, activeExpired, activeRunning, endedUnnotified, endedNotified, cancelled)

	due, err := repo.ListDue(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, a := range due {
		ids = append(ids, a.AuctionID)
	}
	require.ElementsMatch(t, []string{"pending-due", "active-expired", "ended-unnotified"}, ids)

	require.NoError(t, repo.MarkNotified(ctx, "ended-unnotified"))
	due, err = repo.ListDue(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 2)
}

// Test GetBidsByAuction
func TestMemoryRepo_GetBidsByAuction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := seededRepo(t, newAuction("a1", "p1", 100), newAuction("a2", "p2", 100))

	// Seed a ledger through successive swaps
	for i := 0; i < 100; i++ {
		state, err := repo.ReadState(ctx, "a1")
		require.NoError(t, err)
		_, err = repo.CompareAndSwapBid(ctx, state, newBid(fmt.Sprintf("b%d", i), "a1", fmt.Sprintf("u%d", i%7), state.CurrentBid+10, baseTime.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		auctionID string
		wantLen   int
		wantErr   error
	}{
		{name: "auction_with_bids", auctionID: "a1", wantLen: 100},
		{name: "auction_without_bids", auctionID: "a2", wantLen: 0},
		{name: "unknown_auction", auctionID: "aX", wantErr: biddingerrors.ErrAuctionNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bids, err := repo.GetBidsByAuction(ctx, tc.auctionID)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, bids, tc.wantLen)
			for i := 1; i < len(bids); i++ {
				require.Equal(t, bids[i-1].Sequence+1, bids[i].Sequence)
				require.Greater(t, bids[i].Amount, bids[i-1].Amount)
			}
		})
	}

	t.Run("returned_slice_is_a_copy", func(t *testing.T) {
		bids, err := repo.GetBidsByAuction(ctx, "a1")
		require.NoError(t, err)
		bids[0].Amount = -1
		again, err := repo.GetBidsByAuction(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, int64(110), again[0].Amount)
	})
}

// Test GetAuctionsByUser
func TestMemoryRepo_GetAuctionsByUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := seededRepo(t, newAuction("a1", "p1", 100), newAuction("a2", "p2", 100))

	for _, id := range []string{"a1", "a2", "a1"} {
		state, err := repo.ReadState(ctx, id)
		require.NoError(t, err)
		_, err = repo.CompareAndSwapBid(ctx, state, newBid("b-"+id+fmt.Sprint(state.BidCount), id, "user1", state.CurrentBid+1, baseTime.Add(time.Minute)))
		require.NoError(t, err)
	}

	auctions, err := repo.GetAuctionsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, auctions, 2, "each auction is listed once per user")

	_, err = repo.GetAuctionsByUser(ctx, "nobody")
	require.ErrorIs(t, err, biddingerrors.ErrUserNoBids)
}
