package integrationtests

import (
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

var baseTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// testClock lets a test move the services' notion of now
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEnv bundles a router with the store and clock behind it
type TestEnv struct {
	Router *gin.Engine
	Repo   *repository.MemoryRepo
	Clock  *testClock
	Tick   func(t *testing.T) []lifecycle.Transition
}

// SetupTestEnv initializes the router with an in-memory repository for integration testing.
func SetupTestEnv(t *testing.T, policy bidding.Policy, auctions ...model.Auction) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		if err := repo.CreateAuction(context.Background(), a); err != nil {
			t.Fatalf("failed to seed auction %s: %v", a.AuctionID, err)
		}
	}

	clock := &testClock{now: baseTime}
	lc := lifecycle.NewClock(repo, nil)
	opts := []bidding.Option{bidding.WithPolicy(policy), bidding.WithClock(lc), bidding.WithNow(clock.Now)}

	opt := server.DefaultOptions()
	opt.BidRate, opt.BidBurst = 1000, 1000
	router := server.SetupRouter(bidding.NewBiddingService(repo, opts...), bidding.NewQueryService(repo, opts...), opt)

	return &TestEnv{
		Router: router,
		Repo:   repo,
		Clock:  clock,
		Tick: func(t *testing.T) []lifecycle.Transition {
			transitions, err := lc.Tick(context.Background(), clock.Now())
			if err != nil {
				t.Fatalf("tick failed: %v", err)
			}
			return transitions
		},
	}
}

// SeedAuction returns an ACTIVE auction open from baseTime for the given duration
func SeedAuction(id string, startPrice int64, open time.Duration) model.Auction {
	return model.Auction{
		AuctionID:  id,
		ProductID:  "product-" + id,
		StartPrice: startPrice,
		CurrentBid: startPrice,
		StartTime:  baseTime,
		EndTime:    baseTime.Add(open),
		Status:     model.StatusActive,
		Version:    1,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
}

// Caller identifies the user behind a request; empty means anonymous
type Caller struct {
	UserID string
	Roles  string
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response.
// For 201 responses the "data" object is returned directly.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, caller Caller, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if caller.UserID != "" {
		req.Header.Set("X-User-ID", caller.UserID)
	}
	if caller.Roles != "" {
		req.Header.Set("X-User-Roles", caller.Roles)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == 201 {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}
