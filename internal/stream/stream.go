// Package stream hosts the long-lived public websocket ingestors that keep
// the in-memory market state fresh. Each ingestor owns exactly one
// connection and never blocks its read loop: message handling is limited to
// O(1) map writes under short-lived locks.
package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	baseStreamURL  = "wss://fstream.binance.com/ws"
	initialDelay   = 5 * time.Second
	maxDelay       = 60 * time.Second
	backoffFactor  = 1.5
	readIdleWindow = 3 * time.Minute
)

// runStream dials url and pumps messages into handle until ctx is
// cancelled. Both ingestors share this reconnect policy: wait delay before
// re-dialing, multiply delay by 1.5 after each failed attempt up to the cap,
// and reset it to the initial value after any successful message.
func runStream(ctx context.Context, url string, logger zerolog.Logger, handle func([]byte)) {
	delay := initialDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", delay).Msg("stream dial failed")
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		logger.Info().Str("url", url).Msg("stream connected")

		// Unblock ReadMessage promptly when the service shuts down.
		connCtx, cancelConn := context.WithCancel(ctx)
		go func() {
			<-connCtx.Done()
			conn.Close()
		}()

		for {
			conn.SetReadDeadline(time.Now().Add(readIdleWindow))
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					cancelConn()
					return
				}
				logger.Warn().Err(err).Dur("retry_in", delay).Msg("stream read failed, reconnecting")
				break
			}
			handle(message)
			delay = initialDelay
		}

		cancelConn()
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func nextDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * backoffFactor)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
