package lifecycle

import (
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"time"
)

// maxSteps bounds how many transitions a single settle may apply (PENDING -> ACTIVE -> ENDED)
// plus one re-read after losing a race.
const maxSteps = 4

// Transition describes one status change applied by the clock
type Transition struct {
	AuctionID string              `json:"auction_id"`
	From      model.AuctionStatus `json:"from"`
	To        model.AuctionStatus `json:"to"`
}

// Clock moves auctions through PENDING, ACTIVE and ENDED based on wall-clock
// time. It only ever changes status; bid state is owned by the admission path.
type Clock struct {
	repo     repository.AuctionDB
	notifier notify.Notifier
}

// NewClock creates a lifecycle clock. A nil notifier logs results only.
func NewClock(repo repository.AuctionDB, notifier notify.Notifier) *Clock {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	return &Clock{repo: repo, notifier: notifier}
}

// next returns the status the auction should move to at now, if any
func next(a model.Auction, now time.Time) (model.AuctionStatus, bool) {
	switch a.Status {
	case model.StatusPending:
		if !now.Before(a.StartTime) {
			return model.StatusActive, true
		}
	case model.StatusActive:
		if !now.Before(a.EndTime) {
			return model.StatusEnded, true
		}
	}
	return "", false
}

// Settle applies every transition that is due for the auction at now and
// returns its resulting state. Calling it again yields the same state.
func (c *Clock) Settle(ctx context.Context, a model.Auction, now time.Time) (model.Auction, []Transition, error) {
	var applied []Transition
	for step := 0; step < maxSteps; step++ {
		to, due := next(a, now)
		if !due {
			return a, applied, nil
		}

		from := a.Status
		updated, ok, err := c.repo.TransitionStatus(ctx, a.AuctionID, from, to, now)
		if err != nil {
			return a, applied, fmt.Errorf("lifecycle: settle auction %s: %w", a.AuctionID, err)
		}
		a = updated
		if !ok {
			// someone else moved it first; re-evaluate from the state we got back
			continue
		}

		applied = append(applied, Transition{AuctionID: a.AuctionID, From: from, To: to})
		metrics.Transitions.WithLabelValues(string(to)).Inc()
		utils.Info("auction transitioned", map[string]any{
			"auction_id": a.AuctionID,
			"from":       from,
			"to":         to,
			"leader_id":  a.LeaderID,
			"bid_count":  a.BidCount,
		})
	}
	return a, applied, nil
}

// Tick sweeps every auction due at now, applies transitions and delivers any
// outstanding end-of-auction notifications. Failed deliveries are retried on
// the next tick.
func (c *Clock) Tick(ctx context.Context, now time.Time) ([]Transition, error) {
	due, err := c.repo.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list due auctions: %w", err)
	}

	var (
		transitions []Transition
		errs        []error
	)
	for _, a := range due {
		settled, applied, err := c.Settle(ctx, a, now)
		transitions = append(transitions, applied...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if settled.Status == model.StatusEnded && !settled.Notified {
			c.deliver(ctx, settled)
		}
	}
	return transitions, errors.Join(errs...)
}

func (c *Clock) deliver(ctx context.Context, a model.Auction) {
	result := model.ResultOf(a)
	if err := c.notifier.AuctionEnded(ctx, result); err != nil {
		metrics.NotificationFailures.Inc()
		utils.Warn("lifecycle: end notification failed, will retry", map[string]any{
			"auction_id": a.AuctionID,
			"error":      err.Error(),
		})
		return
	}
	if err := c.repo.MarkNotified(ctx, a.AuctionID); err != nil {
		utils.Warn("lifecycle: could not mark auction notified", map[string]any{
			"auction_id": a.AuctionID,
			"error":      err.Error(),
		})
	}
}

// Run ticks every interval until ctx is cancelled
func (c *Clock) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.Info("lifecycle clock started", map[string]any{"interval": interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("lifecycle clock stopped", nil)
			return
		case t := <-ticker.C:
			transitions, err := c.Tick(ctx, t.UTC())
			if err != nil {
				utils.Error("lifecycle: tick failed", map[string]any{"error": err.Error()})
			}
			if len(transitions) > 0 {
				utils.Debug("lifecycle: tick applied transitions", map[string]any{"count": len(transitions)})
			}
		}
	}
}
