package server

import (
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/metrics"
	handler "auction-engine/services/bidding/handler"
	"auction-engine/services/bidding/helpers"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Options configures the transport-level policies of the router
type Options struct {
	JWTSecret string
	BidRate   float64
	BidBurst  int
}

// DefaultOptions trusts identity headers and allows 5 bids per second per user
func DefaultOptions() Options {
	return Options{BidRate: 5, BidBurst: 10}
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService *bidding.BiddingService, queryService *bidding.QueryService, opts Options) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(MetricsMiddleware)

	metrics.Init()
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	biddingHandler := handler.NewBiddingHandler(biddingService, queryService)
	auth := NewAuthenticator(opts.JWTSecret)
	limiter := NewBidRateLimiter(opts.BidRate, opts.BidBurst)

	auctions := router.Group("/auctions")
	{
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidHistoryHandler)
		auctions.GET("/:auction_id/time-remaining", biddingHandler.GetTimeRemainingHandler)
		auctions.GET("/:auction_id/leaderboard", biddingHandler.GetLeaderboardHandler)

		auctions.POST("/:auction_id/bids", auth.Middleware, limiter.Middleware, biddingHandler.PlaceBidHandler)

		admin := auctions.Group("", auth.Middleware, RequireRole(helpers.RoleAdmin))
		admin.POST("", biddingHandler.CreateAuctionHandler)
		admin.POST("/:auction_id/cancel", biddingHandler.CancelAuctionHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
	}

	return router
}
