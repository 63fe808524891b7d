package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	repository "auction-engine/internal/repository"
)

// openAuction is ACTIVE for the next hour of wall-clock time
func openAuction(id string, startPrice int64) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		AuctionID:  id,
		ProductID:  "product_" + id,
		StartPrice: startPrice,
		CurrentBid: startPrice,
		StartTime:  now.Add(-time.Minute),
		EndTime:    now.Add(time.Hour),
		Status:     model.StatusActive,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func seedAuctions(b *testing.B, repo *repository.MemoryRepo, n int, startPrice int64) {
	b.Helper()
	for i := 0; i < n; i++ {
		if err := repo.CreateAuction(context.Background(), openAuction(fmt.Sprintf("auction_%d", i), startPrice)); err != nil {
			b.Fatalf("failed to seed auction: %v", err)
		}
	}
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	seedAuctions(b, repo, b.N, 50)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user_%d", i)
		auctionID := fmt.Sprintf("auction_%d", i)
		bidAmount := int64(51 + rand.Intn(100))
		if _, err := svc.PlaceBid(ctx, auctionID, userID, bidAmount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	seedAuctions(b, repo, 1, 50)

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50
	var accepted, rejected int64

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_parallel_%d", rnd.Int())

			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			if _, err := svc.PlaceBid(ctx, "auction_0", userID, nextBid); err != nil {
				atomic.AddInt64(&rejected, 1)
				continue
			}
			atomic.AddInt64(&accepted, 1)
		}
	})
	b.ReportMetric(float64(accepted)/float64(b.N), "accepted/op")
	b.ReportMetric(float64(rejected)/float64(b.N), "rejected/op")
}

// Benchmark 3: GetCurrentState - Single - Threaded (Low Contention)
func Benchmark_GetCurrentState_SingleThreaded(b *testing.B) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	query := bidding.NewQueryService(repo)
	seedAuctions(b, repo, b.N, 50)

	for i := 0; i < b.N; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		for j := 1; j <= 10; j++ {
			_, _ = svc.PlaceBid(ctx, auctionID, fmt.Sprintf("user_%d_%d", i, j), int64(50+j*10))
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		if _, err := query.GetCurrentState(ctx, auctionID); err != nil {
			b.Fatalf("failed to get auction state: %v", err)
		}
	}
}

// Benchmark 4: GetCurrentState - Concurrent (High Contention)
func Benchmark_GetCurrentState_ConcurrentSharedAuction(b *testing.B) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	query := bidding.NewQueryService(repo)
	seedAuctions(b, repo, 1, 50)

	for j := 1; j <= 100; j++ {
		_, _ = svc.PlaceBid(ctx, "auction_0", fmt.Sprintf("user_%d", j), int64(50+j))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := query.GetCurrentState(ctx, "auction_0"); err != nil {
				b.Errorf("failed to get auction state: %v", err)
				return
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	query := bidding.NewQueryService(repo)
	seedAuctions(b, repo, 1, 50)

	for j := 1; j <= 50; j++ {
		_, _ = svc.PlaceBid(ctx, "auction_0", fmt.Sprintf("user_seed_%d", j), int64(50+j*2))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 150

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			switch opType := rnd.Intn(10); {
			case opType < 3:
				userID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = svc.PlaceBid(ctx, "auction_0", userID, nextBid)
			case opType < 5:
				_, _ = query.GetBidHistory(ctx, "auction_0")
			default:
				_, _ = query.GetCurrentState(ctx, "auction_0")
			}
		}
	})
}
