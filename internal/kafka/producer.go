package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// MessageWriter is the subset of kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing cache events to Kafka
type Producer struct {
	writer MessageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishCacheEvent publishes a cache write event keyed by symbol
func (p *Producer) PublishCacheEvent(ctx context.Context, eventType string, key models.CacheKey, points int) error {
	event := models.CacheEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Symbol:    key.Symbol,
		Function:  key.Function,
		Points:    points,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, key.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.CacheEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
