package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/biddingerrors"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the authentication middleware
const (
	ContextUserID = "auth_user_id"
	ContextRoles  = "auth_roles"
)

// RoleAdmin may create and cancel auctions
const RoleAdmin = "admin"

// UserID returns the authenticated bidder for the request
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserID)
	return id, id != ""
}

// HasRole reports whether the authenticated user holds role
func HasRole(c *gin.Context, role string) bool {
	for _, r := range c.GetStringSlice(ContextRoles) {
		if r == role {
			return true
		}
	}
	return false
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction is closed"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAlreadyLeading):
		return http.StatusConflict, "you already hold the highest bid"
	case errors.Is(err, biddingerrors.ErrAuctionExists):
		return http.StatusConflict, "product already has an open auction"
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no auctions found for user"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// WriteServiceError sends the mapped error; bid-too-low responses carry the
// minimum amount so the client can pre-fill a valid retry
func WriteServiceError(c *gin.Context, err error) {
	status, message := MapErrorToHTTP(err)
	if minimum, ok := biddingerrors.MinimumFrom(err); ok {
		utils.JSONErrorWithDetails(c, status, fmt.Errorf("%s: %w", message, err), message, gin.H{"minimum_amount": minimum})
		return
	}
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
