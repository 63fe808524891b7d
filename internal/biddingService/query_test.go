package bidding

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryService_GetTimeRemaining(t *testing.T) {
	ctx := context.Background()
	clock := newManualTime(t0)
	service, query, _ := newMemoryService(t, DefaultPolicy(), clock)

	pending := createAuction(t, service, 100, t0.Add(10*time.Minute), t0.Add(time.Hour))
	active := createAuction(t, service, 200, t0, t0.Add(30*time.Minute))

	tr, err := query.GetTimeRemaining(ctx, pending.AuctionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, tr.Status)
	require.Equal(t, 10*time.Minute, tr.StartsIn)
	require.Equal(t, time.Hour, tr.Remaining)

	tr, err = query.GetTimeRemaining(ctx, active.AuctionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, tr.Status)
	require.Zero(t, tr.StartsIn)
	require.Equal(t, 30*time.Minute, tr.Remaining)

	clock.Set(t0.Add(45 * time.Minute))
	tr, err = query.GetTimeRemaining(ctx, active.AuctionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, tr.Status)
	require.Zero(t, tr.Remaining)

	_, err = query.GetTimeRemaining(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	_, err = query.GetTimeRemaining(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAuction)
}

func TestQueryService_GetLeaderboard(t *testing.T) {
	ctx := context.Background()
	clock := newManualTime(t0)
	service, query, _ := newMemoryService(t, DefaultPolicy(), clock)
	auction := createAuction(t, service, 100, t0, t0.Add(time.Hour))

	for i, bid := range []struct {
		user   string
		amount int64
	}{
		{"alice", 110}, {"bob", 120}, {"alice", 130}, {"carol", 140}, {"bob", 150},
	} {
		clock.Set(t0.Add(time.Duration(i+1) * time.Second))
		_, err := service.PlaceBid(ctx, auction.AuctionID, bid.user, bid.amount)
		require.NoError(t, err)
	}

	board, err := query.GetLeaderboard(ctx, auction.AuctionID, 0)
	require.NoError(t, err)
	require.Len(t, board, 3)
	require.Equal(t, "bob", board[0].UserID)
	require.Equal(t, int64(150), board[0].Amount)
	require.Equal(t, 2, board[0].BidsCount)
	require.Equal(t, 1, board[0].Rank)
	require.Equal(t, "carol", board[1].UserID)
	require.Equal(t, "alice", board[2].UserID)
	require.Equal(t, int64(130), board[2].Amount)
	require.Equal(t, 3, board[2].Rank)

	top, err := query.GetLeaderboard(ctx, auction.AuctionID, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, "bob", top[0].UserID)

	empty := createAuction(t, service, 500, t0, t0.Add(time.Hour))
	board, err = query.GetLeaderboard(ctx, empty.AuctionID, 10)
	require.NoError(t, err)
	require.Empty(t, board)
}

func TestQueryService_GetBidHistory(t *testing.T) {
	ctx := context.Background()
	clock := newManualTime(t0)
	service, query, _ := newMemoryService(t, DefaultPolicy(), clock)
	auction := createAuction(t, service, 100, t0, t0.Add(time.Hour))

	history, err := query.GetBidHistory(ctx, auction.AuctionID)
	require.NoError(t, err)
	require.Empty(t, history)

	for _, amount := range []int64{101, 150, 151} {
		_, err := service.PlaceBid(ctx, auction.AuctionID, "u1", amount)
		require.NoError(t, err)
	}

	// history stays readable after the auction ends
	clock.Set(t0.Add(2 * time.Hour))
	history, err = query.GetBidHistory(ctx, auction.AuctionID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, b := range history {
		require.Equal(t, int64(i+1), b.Sequence)
		require.Equal(t, model.BidAccepted, b.Status)
	}

	_, err = query.GetBidHistory(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
}
