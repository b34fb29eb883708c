// Package events publishes order lifecycle events to RabbitMQ. Publishing is
// best-effort from the caller's point of view; consumers such as
// notification and fulfilment workers pick the messages up asynchronously.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ajaySingh2615/devices/internal/domain/order"
)

const (
	OrderPlacedQueue        = "order.placed"
	OrderStatusChangedQueue = "order.status_changed"

	publishTimeout = 3 * time.Second
)

// OrderPlaced is the message body emitted when an order is created.
type OrderPlaced struct {
	EventType     string           `json:"eventType"`
	OrderID       string           `json:"orderId"`
	UserID        string           `json:"userId"`
	GrandTotal    string           `json:"grandTotal"`
	Currency      string           `json:"currency"`
	PaymentMethod string           `json:"paymentMethod"`
	CouponCode    string           `json:"couponCode,omitempty"`
	Items         []OrderLineEvent `json:"items"`
	Timestamp     time.Time        `json:"timestamp"`
}

// OrderLineEvent is one order line inside an OrderPlaced message.
type OrderLineEvent struct {
	VariantID string `json:"variantId"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

// OrderStatusChanged is the message body emitted on every status transition.
type OrderStatusChanged struct {
	EventType  string    `json:"eventType"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Timestamp  time.Time `json:"timestamp"`
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher emits order events on a dedicated AMQP channel.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the durable queues, so publish
// never fails due to missing infra.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, queue := range []string{OrderPlacedQueue, OrderStatusChangedQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare %s: %w", queue, err)
		}
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// OrderPlaced publishes an OrderPlaced message for the new order.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	ev := OrderPlaced{
		EventType:     "OrderPlaced",
		OrderID:       o.ID,
		UserID:        o.UserID,
		GrandTotal:    o.GrandTotal.StringFixed(2),
		Currency:      o.Currency,
		PaymentMethod: string(o.PaymentMethod),
		CouponCode:    o.CouponCode,
		Timestamp:     time.Now().UTC(),
	}
	for i := range o.Items {
		it := &o.Items[i]
		ev.Items = append(ev.Items, OrderLineEvent{
			VariantID: it.VariantID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderPlaced: %w", err)
	}
	return p.publishJSON(ctx, OrderPlacedQueue, body)
}

// OrderStatusChanged publishes an OrderStatusChanged message for a
// transition.
func (p *Publisher) OrderStatusChanged(ctx context.Context, o *order.Order, from, to order.Status) error {
	ev := OrderStatusChanged{
		EventType:  "OrderStatusChanged",
		OrderID:    o.ID,
		UserID:     o.UserID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Timestamp:  time.Now().UTC(),
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderStatusChanged: %w", err)
	}
	return p.publishJSON(ctx, OrderStatusChangedQueue, body)
}

func (p *Publisher) publishJSON(ctx context.Context, queue string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",    // default exchange
		queue, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
