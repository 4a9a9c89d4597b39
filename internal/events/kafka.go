// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vasiliy-maslov/restaurant-orders/internal/config"
	"github.com/vasiliy-maslov/restaurant-orders/internal/order"
)

const TypeOrderPlaced = "OrderPlaced"

type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price_at_time"`
}

type OrderPlaced struct {
	EventID     uuid.UUID         `json:"event_id"`
	Type        string            `json:"type"`
	OccurredAt  time.Time         `json:"occurred_at"`
	OrderID     int64             `json:"order_id"`
	CustomerID  int64             `json:"customer_id"`
	OrderType   order.Type        `json:"order_type"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Items       []OrderPlacedItem `json:"items"`
	EmployeeIDs []int64           `json:"employee_ids"`
}

func NewOrderPlaced(o *order.Order, now time.Time) (OrderPlaced, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return OrderPlaced{}, fmt.Errorf("events: failed to generate event id: %w", err)
	}

	items := make([]OrderPlacedItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderPlacedItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	return OrderPlaced{
		EventID:     id,
		Type:        TypeOrderPlaced,
		OccurredAt:  now,
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		OrderType:   o.Type,
		TotalAmount: o.TotalAmount,
		Items:       items,
		EmployeeIDs: o.EmployeeIDs,
	}, nil
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer MessageWriter
	now    func() time.Time
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewKafkaPublisher builds a Publisher on a kafka.Writer for cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Kafka publisher configured")
	return NewPublisher(w)
}

// PublishOrderPlaced writes one message keyed by order id, so events for the
// same order keep their relative order within a partition.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, o *order.Order) error {
	event, err := NewOrderPlaced(o, p.now())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: failed to marshal %s event: %w", TypeOrderPlaced, err)
	}

	headers := headerCarrier{{Key: "event_type", Value: []byte(TypeOrderPlaced)}}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(o.ID, 10)),
		Value:   payload,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: failed to write %s event for order %d: %w", TypeOrderPlaced, o.ID, err)
	}

	log.Debug().Int64("order_id", o.ID).Stringer("event_id", event.EventID).Msg("events: order placed event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, *order.Order) error { return nil }

func (NopPublisher) Close() error { return nil }

// headerCarrier adapts Kafka headers to a propagation.TextMapCarrier.
type headerCarrier []kafka.Header

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}
