package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryDefaults(t *testing.T) {
	cfg := RetryConfig{}.withDefaults()
	assert.Equal(t, 50, cfg.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Delay)

	cfg = RetryConfig{MaxRetries: 2, Delay: time.Millisecond}.withDefaults()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, time.Millisecond, cfg.Delay)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://u:p@localhost:notaport/db", RetryConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestConnectGivesUp(t *testing.T) {
	// порт 1 никто не слушает
	_, err := Connect(context.Background(), "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", RetryConfig{
		MaxRetries:     2,
		Delay:          10 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
		PingTimeout:    200 * time.Millisecond,
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Connect(ctx, "postgres://u:p@127.0.0.1:1/db?sslmode=disable", RetryConfig{MaxRetries: 5, Delay: time.Second}, zap.NewNop())
	require.Error(t, err)
}
