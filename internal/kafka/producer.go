// Package kafka streams listing and order lifecycle events for downstream
// consumers (search indexing, analytics). Publishing is best effort: the
// services log failures and keep going.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Producer writes listing events to one topic and order events to another.
// With MockMode set it logs what it would publish and skips the broker,
// for local runs without Kafka.
type Producer struct {
	Listings *kafka.Writer
	Orders   *kafka.Writer
	Log      *logger.Logger
	MockMode bool
}

func NewProducer(brokers []string, listingsTopic, ordersTopic string, log *logger.Logger, mockMode bool) *Producer {
	p := &Producer{Log: log, MockMode: mockMode}
	if mockMode {
		log.Warn("KAFKA", "running in mock mode, events are logged only")
		return p
	}
	p.Listings = &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    listingsTopic,
		Balancer: &kafka.LeastBytes{},
	}
	p.Orders = &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    ordersTopic,
		Balancer: &kafka.LeastBytes{},
	}
	return p
}

func (p *Producer) PublishListingCreated(l models.Listing) error {
	return p.publish(p.Listings, "listing_created", l.ID, l)
}

func (p *Producer) PublishListingDeleted(l models.Listing) error {
	return p.publish(p.Listings, "listing_deleted", l.ID, l)
}

func (p *Producer) PublishOrderCompleted(o models.Order) error {
	return p.publish(p.Orders, "order_completed", o.ID, o)
}

func (p *Producer) PublishOrderFailed(o models.Order) error {
	return p.publish(p.Orders, "order_failed", o.ID, o)
}

func (p *Producer) publish(w *kafka.Writer, eventType, key string, payload interface{}) error {
	value, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	if p.MockMode {
		p.Log.Info("KAFKA", fmt.Sprintf("mock publish [%s] key=%s", eventType, key))
		return nil
	}

	return w.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Close flushes and closes both writers.
func (p *Producer) Close() error {
	if p.MockMode {
		return nil
	}
	if err := p.Listings.Close(); err != nil {
		return err
	}
	return p.Orders.Close()
}
