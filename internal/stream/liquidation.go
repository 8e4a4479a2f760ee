package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// forceOrderMessage mirrors the !forceOrder@arr payload.
type forceOrderMessage struct {
	EventType string `json:"e"`
	Order     struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"` // order side, not position side
		Quantity     string `json:"q"`
		Price        string `json:"p"`
		AveragePrice string `json:"ap"`
		TradeTime    int64  `json:"T"`
	} `json:"o"`
}

// LiquidationIngestor consumes the all-market forced liquidation stream and
// appends events to the rolling window.
type LiquidationIngestor struct {
	window *LiquidationWindow
	logger zerolog.Logger
}

// NewLiquidationIngestor creates a liquidation ingestor writing into window.
func NewLiquidationIngestor(window *LiquidationWindow, logger zerolog.Logger) *LiquidationIngestor {
	return &LiquidationIngestor{
		window: window,
		logger: logger.With().Str("component", "liquidation-stream").Logger(),
	}
}

// Run blocks until ctx is cancelled, maintaining the connection per the
// shared reconnect policy.
func (li *LiquidationIngestor) Run(ctx context.Context) {
	runStream(ctx, baseStreamURL+"/!forceOrder@arr", li.logger, li.handleMessage)
	li.logger.Info().Msg("liquidation ingestor stopped")
}

func (li *LiquidationIngestor) handleMessage(message []byte) {
	var msg forceOrderMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		li.logger.Warn().Err(err).Msg("skipping unparseable liquidation message")
		return
	}
	if msg.Order.Symbol == "" {
		return
	}

	price, _ := strconv.ParseFloat(msg.Order.AveragePrice, 64)
	if price <= 0 {
		price, _ = strconv.ParseFloat(msg.Order.Price, 64)
	}
	qty, _ := strconv.ParseFloat(msg.Order.Quantity, 64)
	if price <= 0 || qty <= 0 {
		return
	}

	// A SELL forced order closes a LONG position and vice versa.
	side := SideShort
	if msg.Order.Side == "SELL" {
		side = SideLong
	}

	observedAt := time.Now()
	if msg.Order.TradeTime > 0 {
		observedAt = time.UnixMilli(msg.Order.TradeTime)
	}

	li.window.Add(LiquidationEvent{
		Symbol:      msg.Order.Symbol,
		Side:        side,
		NotionalUsd: price * qty,
		Price:       price,
		ObservedAt:  observedAt,
	})
}
