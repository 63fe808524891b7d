package notify

import (
	model "auction-engine/internal/models"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestAMQPNotifier_AuctionEnded(t *testing.T) {
	ended := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	result := model.AuctionResult{
		AuctionID:    "a1",
		ProductID:    "p1",
		Status:       model.StatusEnded,
		WinningBidID: "b3",
		WinnerID:     "carol",
		Amount:       115000,
		EndedAt:      ended,
	}

	t.Run("publishes_persistent_event", func(t *testing.T) {
		pub := &fakePublisher{}
		n := NewAMQPNotifier(pub, "auctions")

		require.NoError(t, n.AuctionEnded(context.Background(), result))
		require.Len(t, pub.sent, 1)

		sent := pub.sent[0]
		require.Equal(t, "auctions", sent.exchange)
		require.Equal(t, "auction.ended", sent.key)
		require.Equal(t, "a1", sent.msg.MessageId)
		require.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
		require.Equal(t, "application/json", sent.msg.ContentType)

		var body map[string]any
		require.NoError(t, json.Unmarshal(sent.msg.Body, &body))
		require.Equal(t, "AuctionEnded", body["type"])
		require.Equal(t, "carol", body["winner_id"])
		require.Equal(t, float64(115000), body["amount"])
	})

	t.Run("publish_failure_is_returned", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("channel closed")}
		n := NewAMQPNotifier(pub, "auctions")

		err := n.AuctionEnded(context.Background(), result)
		require.Error(t, err)
		require.Contains(t, err.Error(), "a1")
	})
}

func TestLogNotifier_AuctionEnded(t *testing.T) {
	n := NewLogNotifier()
	require.NoError(t, n.AuctionEnded(context.Background(), model.AuctionResult{AuctionID: "a1", Status: model.StatusEnded}))
	require.NoError(t, n.AuctionEnded(context.Background(), model.AuctionResult{AuctionID: "a2", WinningBidID: "b1", WinnerID: "u1", Amount: 10}))
}
