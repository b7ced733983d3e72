// Package loadgen produces fake CloudEvents to Kafka for exercising resistord.
package loadgen

import (
	"encoding/json"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"
)

// Event types produced by the generator.
const (
	TypeOrderPlaced   = "com.resistor.orders.placed"
	TypeOrderShipped  = "com.resistor.orders.shipped"
	TypePaymentFailed = "com.resistor.payments.failed"

	DefaultSource = "resistor-loadgen"
)

// OrderPlaced is the payload of TypeOrderPlaced.
type OrderPlaced struct {
	OrderID       string    `json:"orderId"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail"`
	Items         int       `json:"items"`
	AmountCents   int       `json:"amountCents"`
	City          string    `json:"city"`
	PlacedAt      time.Time `json:"placedAt"`
}

// OrderShipped is the payload of TypeOrderShipped.
type OrderShipped struct {
	OrderID   string    `json:"orderId"`
	Carrier   string    `json:"carrier"`
	Tracking  string    `json:"tracking"`
	ShippedAt time.Time `json:"shippedAt"`
}

// PaymentFailed is the payload of TypePaymentFailed.
type PaymentFailed struct {
	OrderID     string `json:"orderId"`
	Reason      string `json:"reason"`
	AmountCents int    `json:"amountCents"`
}

// Message is one generated Kafka message. Invalid messages are not
// CloudEvents and end up in the dead letter topic.
type Message struct {
	Event   *cloudevents.Event
	Invalid []byte
}

// GeneratorConfig controls what the generator emits.
type GeneratorConfig struct {
	Source string
	// InvalidRatio is the share of messages, between 0 and 1, that are not
	// CloudEvents.
	InvalidRatio float64
}

// Generator creates fake order events.
type Generator struct {
	cfg   GeneratorConfig
	faker faker.Faker
	now   func() time.Time
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	return &Generator{cfg: cfg, faker: faker.New(), now: time.Now}
}

// Next returns the next message.
func (g *Generator) Next() (Message, error) {
	if g.cfg.InvalidRatio > 0 && g.faker.IntBetween(1, 1000) <= int(g.cfg.InvalidRatio*1000) {
		body, err := json.Marshal(map[string]string{
			"note":    g.faker.Lorem().Sentence(4),
			"payload": g.faker.RandomStringWithLength(16),
		})
		if err != nil {
			return Message{}, err
		}
		return Message{Invalid: body}, nil
	}

	var (
		eventType string
		data      any
	)
	orderID := "O" + g.faker.UUID().V4()[0:8]
	switch n := g.faker.IntBetween(1, 100); {
	case n <= 60:
		eventType = TypeOrderPlaced
		data = OrderPlaced{
			OrderID:       orderID,
			CustomerName:  g.faker.Person().Name(),
			CustomerEmail: g.faker.Internet().Email(),
			Items:         g.faker.IntBetween(1, 12),
			AmountCents:   g.faker.IntBetween(199, 49999),
			City:          g.faker.Address().City(),
			PlacedAt:      g.now().UTC(),
		}
	case n <= 90:
		eventType = TypeOrderShipped
		data = OrderShipped{
			OrderID:   orderID,
			Carrier:   g.pick("dhl", "ups", "fedex", "postnl"),
			Tracking:  g.faker.RandomStringWithLength(12),
			ShippedAt: g.now().UTC(),
		}
	default:
		eventType = TypePaymentFailed
		data = PaymentFailed{
			OrderID:     orderID,
			Reason:      g.pick("card_declined", "insufficient_funds", "expired_card"),
			AmountCents: g.faker.IntBetween(199, 49999),
		}
	}

	e := cloudevents.NewEvent(cloudevents.VersionV1)
	e.SetID(uuid.NewString())
	e.SetType(eventType)
	e.SetSource(g.cfg.Source)
	e.SetSubject(orderID)
	e.SetTime(g.now())
	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return Message{}, err
	}
	return Message{Event: &e}, nil
}

func (g *Generator) pick(options ...string) string {
	return options[g.faker.IntBetween(0, len(options)-1)]
}
