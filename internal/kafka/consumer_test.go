package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// MockRefresher records refresh calls
type MockRefresher struct {
	err error

	RefreshCalls   int
	LastKey        models.CacheKey
	LastOutputSize models.OutputSize
}

func (m *MockRefresher) Refresh(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error) {
	m.RefreshCalls++
	m.LastKey = key
	m.LastOutputSize = outputSize
	if m.err != nil {
		return nil, m.err
	}
	return models.RawSeries{"2024-01-31": {models.FieldClose: "1.00"}}, nil
}

func message(value string) kafka.Message {
	return kafka.Message{Key: []byte("AAPL"), Value: []byte(value)}
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes the requested series", func(t *testing.T) {
		refresher := &MockRefresher{}
		consumer := &Consumer{refresher: refresher}

		err := consumer.processMessage(ctx, message(`{"symbol":"AAPL","interval":"daily","outputsize":"compact"}`))
		require.NoError(t, err)

		assert.Equal(t, 1, refresher.RefreshCalls)
		assert.Equal(t, models.CacheKey{Symbol: "AAPL", Function: models.FunctionDaily}, refresher.LastKey)
		assert.Equal(t, models.OutputSizeCompact, refresher.LastOutputSize)
	})

	t.Run("defaults to monthly full", func(t *testing.T) {
		refresher := &MockRefresher{}
		consumer := &Consumer{refresher: refresher}

		require.NoError(t, consumer.processMessage(ctx, message(`{"symbol":"VUAA.DE"}`)))

		assert.Equal(t, models.CacheKey{Symbol: "VUAA.DE", Function: models.FunctionMonthly}, refresher.LastKey)
		assert.Equal(t, models.OutputSizeFull, refresher.LastOutputSize)
	})

	t.Run("invalid messages are rejected without refreshing", func(t *testing.T) {
		tests := []struct {
			name  string
			value string
		}{
			{"not json", `{{`},
			{"missing symbol", `{"interval":"daily"}`},
			{"bad interval", `{"symbol":"AAPL","interval":"hourly"}`},
			{"bad outputsize", `{"symbol":"AAPL","outputsize":"huge"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				refresher := &MockRefresher{}
				consumer := &Consumer{refresher: refresher}

				err := consumer.processMessage(ctx, message(tt.value))
				assert.Error(t, err)
				assert.Zero(t, refresher.RefreshCalls)
			})
		}
	})

	t.Run("refresh errors are returned", func(t *testing.T) {
		refresher := &MockRefresher{err: errors.New("upstream down")}
		consumer := &Consumer{refresher: refresher}

		err := consumer.processMessage(ctx, message(`{"symbol":"AAPL"}`))
		assert.ErrorIs(t, err, refresher.err)
	})
}

// MockReader hands out queued messages, then blocks until ctx ends
type MockReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	closes   int
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.messages) > 0 {
		msg := m.messages[0]
		m.messages = m.messages[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func TestStart(t *testing.T) {
	t.Run("processes messages and leaves the reader open on shutdown", func(t *testing.T) {
		reader := &MockReader{messages: []kafka.Message{
			message(`{"symbol":"AAPL"}`),
			message(`not json`),
			message(`{"symbol":"IBM","interval":"weekly"}`),
		}}
		refresher := &MockRefresher{}
		consumer := &Consumer{reader: reader, topic: "stock-cache-refresh", refresher: refresher}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- consumer.Start(ctx) }()

		require.Eventually(t, func() bool {
			reader.mu.Lock()
			defer reader.mu.Unlock()
			return len(reader.messages) == 0
		}, time.Second, 5*time.Millisecond)
		cancel()

		require.NoError(t, <-done)
		assert.Equal(t, 2, refresher.RefreshCalls)
		assert.Equal(t, models.CacheKey{Symbol: "IBM", Function: models.FunctionWeekly}, refresher.LastKey)
		assert.Zero(t, reader.closes)

		require.NoError(t, consumer.Close())
		assert.Equal(t, 1, reader.closes)
	})
}
