package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// Refresher force-refreshes a cached series
type Refresher interface {
	Refresh(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error)
}

// MessageReader is the subset of kafka.Reader the consumer uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer handles consuming refresh requests from Kafka
type Consumer struct {
	reader    MessageReader
	topic     string
	refresher Refresher
}

// NewConsumer creates a new Kafka consumer for refresh requests
func NewConsumer(brokers []string, topic, groupID string, refresher Refresher) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:    reader,
		topic:     topic,
		refresher: refresher,
	}
}

// Start consumes messages until ctx ends. The reader stays open; the owner
// closes it with Close.
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting Kafka consumer for topic: %s", c.topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Kafka consumer shutting down...")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Printf("Received message from partition %d offset %d: key=%s",
		msg.Partition, msg.Offset, string(msg.Key))

	var req models.RefreshRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to unmarshal refresh request: %w", err)
	}

	key, outputSize, err := convertRequest(req)
	if err != nil {
		return fmt.Errorf("invalid refresh request: %w", err)
	}

	series, err := c.refresher.Refresh(ctx, key, outputSize)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", key, err)
	}

	log.Printf("Refreshed %s from request: %d points cached", key, len(series))
	return nil
}

// convertRequest maps a RefreshRequest onto a cache key, defaulting to monthly/full
func convertRequest(req models.RefreshRequest) (models.CacheKey, models.OutputSize, error) {
	if req.Symbol == "" {
		return models.CacheKey{}, "", fmt.Errorf("symbol is required")
	}

	intervalName := req.Interval
	if intervalName == "" {
		intervalName = string(models.IntervalMonthly)
	}
	interval, err := models.ParseInterval(intervalName)
	if err != nil {
		return models.CacheKey{}, "", err
	}

	outputSize := models.OutputSizeFull
	if req.OutputSize != "" {
		if outputSize, err = models.ParseOutputSize(req.OutputSize); err != nil {
			return models.CacheKey{}, "", err
		}
	}

	return models.CacheKey{Symbol: req.Symbol, Function: interval.Function()}, outputSize, nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
