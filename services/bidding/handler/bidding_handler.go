package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, userID string, amount int64) (bidding.BidReceipt, error)
	CreateAuction(ctx context.Context, in bidding.CreateAuctionInput) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
}

type QueryServiceInterface interface {
	GetCurrentState(ctx context.Context, auctionID string) (model.Auction, error)
	GetBidHistory(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetTimeRemaining(ctx context.Context, auctionID string) (bidding.TimeRemaining, error)
	GetLeaderboard(ctx context.Context, auctionID string, limit int) ([]bidding.LeaderboardEntry, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
	query   QueryServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface, query QueryServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service, query: query}
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID, ok := helpers.UserID(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errors.New("missing bidder identity"), "unauthenticated")
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	receipt, err := h.service.PlaceBid(c.Request.Context(), auctionID, userID, req.Amount)
	if err != nil {
		helpers.WriteServiceError(c, err)
		fields := map[string]any{
			"handler":    "PlaceBidHandler",
			"auction_id": auctionID,
			"user_id":    userID,
			"amount":     req.Amount,
			"error":      err.Error(),
		}
		if minimum, ok := biddingerrors.MinimumFrom(err); ok {
			fields["minimum_amount"] = minimum
		}
		utils.Warn("PlaceBidHandler: bid rejected", fields)
		return
	}

	resp := helpers.NewBidResponse(receipt.Bid)
	resp.CurrentBid = receipt.NewCurrentBid

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("PlaceBidHandler", "bid accepted", map[string]any{
		"bid_id":     receipt.Bid.BidID,
		"auction_id": auctionID,
		"user_id":    userID,
		"amount":     receipt.Bid.Amount,
		"sequence":   receipt.Bid.Sequence,
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	in := bidding.CreateAuctionInput{
		ProductID:       req.ProductID,
		ListPrice:       req.ListPrice,
		DiscountPercent: req.DiscountPercent,
		EndTime:         req.EndTime,
	}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), in)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("CreateAuctionHandler: failed to create auction", map[string]any{
			"product_id": req.ProductID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(auction), "auction created")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id":  auction.AuctionID,
		"product_id":  auction.ProductID,
		"start_price": auction.StartPrice,
		"status":      auction.Status,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.CancelAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("CancelAuctionHandler: failed to cancel auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction), "auction cancelled")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.query.GetCurrentState(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction), "auction retrieved successfully")
}

// GetBidHistoryHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidHistoryHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.query.GetBidHistory(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetBidHistoryHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidHistoryHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetTimeRemainingHandler handles GET /auctions/:auction_id/time-remaining
func (h *BiddingHandler) GetTimeRemainingHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	tr, err := h.query.GetTimeRemaining(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetTimeRemainingHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.TimeRemainingResponse{
		AuctionID:   tr.AuctionID,
		Status:      string(tr.Status),
		StartsInMs:  tr.StartsIn.Milliseconds(),
		RemainingMs: tr.Remaining.Milliseconds(),
		EndTime:     tr.EndTime.UTC().Format(time.RFC3339),
	}, "time remaining retrieved successfully")
}

// GetLeaderboardHandler handles GET /auctions/:auction_id/leaderboard?limit=N
func (h *BiddingHandler) GetLeaderboardHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.JSONError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw), "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.query.GetLeaderboard(c.Request.Context(), auctionID, limit)
	if err != nil {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetLeaderboardHandler: error retrieving leaderboard", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	if entries == nil {
		entries = []bidding.LeaderboardEntry{}
	}

	utils.JSONResponse(c, http.StatusOK, entries, "leaderboard retrieved successfully")
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		helpers.WriteServiceError(c, err)
		utils.Warn("GetAuctionsByUserHandler: error retrieving auctions", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	resp := make([]helpers.AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, helpers.NewAuctionResponse(a))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(resp),
	})
}
