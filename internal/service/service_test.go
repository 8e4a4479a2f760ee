package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"market-sentry/config"
	"market-sentry/internal/stream"
)

// A replica that cannot win the leader lock must still return from stream
// startup so its scan loop runs on REST-seeded data.
func TestStartStreamsDoesNotBlockWithoutLeadership(t *testing.T) {
	svc := &Service{
		cfg:    config.DefaultConfig(),
		logger: zerolog.Nop(),
		// Nothing listens here, so the campaign can never be won.
		redis:   redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}),
		tickers: stream.NewTickerState(),
		window:  stream.NewLiquidationWindow(time.Minute),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.startStreams(ctx, ctx, cancel)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("startStreams blocked on the leadership campaign")
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("campaign goroutine did not stop on cancellation")
	}
}
