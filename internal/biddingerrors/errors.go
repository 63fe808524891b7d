package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("product already has an open auction")
	ErrUserNoBids      = errors.New("user has not placed any bids")

	// ErrConcurrencyConflict is returned by a compare-and-swap that observed stale state.
	// It never leaves the bidding service.
	ErrConcurrencyConflict = errors.New("auction state changed concurrently")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction")
	ErrAuctionClosed  = errors.New("auction is not accepting bids")
	ErrBidTooLow      = errors.New("bid amount too low")
	ErrAlreadyLeading = errors.New("bidder already holds the highest bid")
)

// BidTooLowError reports the smallest amount the auction would currently accept.
type BidTooLowError struct {
	Minimum int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: minimum acceptable amount is %d", ErrBidTooLow, e.Minimum)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// MinimumFrom extracts the minimum acceptable amount from a wrapped BidTooLowError.
func MinimumFrom(err error) (int64, bool) {
	var tooLow *BidTooLowError
	if errors.As(err, &tooLow) {
		return tooLow.Minimum, true
	}
	return 0, false
}
