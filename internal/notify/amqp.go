package notify

import (
	model "auction-engine/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	auctionEndedRoutingKey = "auction.ended"
	publishTimeout         = 5 * time.Second
)

// Publisher is the subset of *amqp.Channel used to emit events
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes AuctionEnded events to a RabbitMQ exchange for
// downstream order creation
type AMQPNotifier struct {
	publisher Publisher
	exchange  string
	closer    func() error
}

// NewAMQPNotifier wraps an existing publisher
func NewAMQPNotifier(publisher Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, exchange: exchange, closer: func() error { return nil }}
}

// DialAMQP connects to the broker and declares a durable topic exchange
func DialAMQP(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange %s: %w", exchange, err)
	}

	n := NewAMQPNotifier(ch, exchange)
	n.closer = conn.Close
	return n, nil
}

// Close releases the broker connection
func (n *AMQPNotifier) Close() error { return n.closer() }

type auctionEndedEvent struct {
	Type string `json:"type"`
	model.AuctionResult
}

// AuctionEnded publishes the result as a persistent JSON message keyed by auction ID
func (n *AMQPNotifier) AuctionEnded(ctx context.Context, result model.AuctionResult) error {
	body, err := json.Marshal(auctionEndedEvent{Type: "AuctionEnded", AuctionResult: result})
	if err != nil {
		return fmt.Errorf("notify: encode auction %s result: %w", result.AuctionID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = n.publisher.PublishWithContext(ctx, n.exchange, auctionEndedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    result.AuctionID,
		Timestamp:    time.Now().UTC(),
		Type:         "AuctionEnded",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish auction %s result: %w", result.AuctionID, err)
	}
	return nil
}
