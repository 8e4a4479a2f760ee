package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickerEntry is the per-symbol rolling 24h statistics kept current by the
// ticker stream. Entries are overwritten atomically per symbol.
type TickerEntry struct {
	LastPrice          float64
	QuoteVolume        float64
	PriceChangePercent float64
	UpdatedAt          time.Time
}

// TickerState is the shared symbol -> statistics map.
type TickerState struct {
	mu      sync.RWMutex
	entries map[string]TickerEntry
}

// NewTickerState creates an empty ticker state.
func NewTickerState() *TickerState {
	return &TickerState{entries: make(map[string]TickerEntry)}
}

// Get returns the entry for a symbol.
func (ts *TickerState) Get(symbol string) (TickerEntry, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	entry, ok := ts.entries[symbol]
	return entry, ok
}

// Set overwrites the entry for a symbol.
func (ts *TickerState) Set(symbol string, entry TickerEntry) {
	ts.mu.Lock()
	ts.entries[symbol] = entry
	ts.mu.Unlock()
}

// Symbols returns the tracked symbol names in no particular order.
func (ts *TickerState) Symbols() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	symbols := make([]string, 0, len(ts.entries))
	for s := range ts.entries {
		symbols = append(symbols, s)
	}
	return symbols
}

// Len returns the number of tracked symbols.
func (ts *TickerState) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.entries)
}

// tickerMessage mirrors one element of the !ticker@arr payload.
type tickerMessage struct {
	EventType          string `json:"e"`
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	PriceChangePercent string `json:"P"`
	QuoteVolume        string `json:"q"`
}

// TickerIngestor consumes the all-market 24h ticker stream.
type TickerIngestor struct {
	state  *TickerState
	logger zerolog.Logger
}

// NewTickerIngestor creates a ticker ingestor writing into state.
func NewTickerIngestor(state *TickerState, logger zerolog.Logger) *TickerIngestor {
	return &TickerIngestor{
		state:  state,
		logger: logger.With().Str("component", "ticker-stream").Logger(),
	}
}

// Run blocks until ctx is cancelled, maintaining the connection per the
// shared reconnect policy.
func (ti *TickerIngestor) Run(ctx context.Context) {
	runStream(ctx, baseStreamURL+"/!ticker@arr", ti.logger, ti.handleMessage)
	ti.logger.Info().Msg("ticker ingestor stopped")
}

func (ti *TickerIngestor) handleMessage(message []byte) {
	var tickers []tickerMessage
	if err := json.Unmarshal(message, &tickers); err != nil {
		ti.logger.Debug().Err(err).Msg("skipping unparseable ticker message")
		return
	}

	now := time.Now()
	for _, t := range tickers {
		if t.Symbol == "" {
			continue
		}
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		pct, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		quoteVol, _ := strconv.ParseFloat(t.QuoteVolume, 64)

		ti.state.Set(t.Symbol, TickerEntry{
			LastPrice:          last,
			QuoteVolume:        quoteVol,
			PriceChangePercent: pct,
			UpdatedAt:          now,
		})
	}
}
