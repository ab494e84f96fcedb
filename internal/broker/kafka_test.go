package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestConsumer(attempts int) *Consumer {
	return &Consumer{logger: zap.NewNop(), maxAttempts: attempts, retryBackoff: time.Millisecond}
}

func TestHandleWithRetry_SucceedsAfterFailures(t *testing.T) {
	c := newTestConsumer(5)
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("smtp unavailable")
		}
		return nil
	}

	assert.NoError(t, c.handleWithRetry(context.Background(), handler, kafka.Message{Offset: 7}))
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	c := newTestConsumer(3)
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		return errors.New("smtp unavailable")
	}

	err := c.handleWithRetry(context.Background(), handler, kafka.Message{Offset: 7})
	assert.EqualError(t, err, "smtp unavailable")
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetry_StopsOnCancel(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), maxAttempts: 5, retryBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		cancel()
		return errors.New("smtp unavailable")
	}

	err := c.handleWithRetry(ctx, handler, kafka.Message{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
