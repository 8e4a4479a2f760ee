// Package screener scans the futures universe for actionable symbols. A
// cheap prefilter on streamed 24h stats gates the expensive per-symbol
// indicator analysis, which runs on a bounded worker pool.
package screener

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-sentry/internal/binance"
	"market-sentry/internal/fetch"
	"market-sentry/internal/indicators"
	"market-sentry/internal/stream"
	"market-sentry/internal/whale"
)

// TrendBias is the higher-timeframe directional context.
type TrendBias string

const (
	TrendBullish TrendBias = "BULLISH"
	TrendBearish TrendBias = "BEARISH"
	TrendNeutral TrendBias = "NEUTRAL"
)

// Config holds the screener tuning.
type Config struct {
	Workers          int
	MinQuoteVolume   float64 // 24h quote volume prefilter
	MinAbsChangePct  float64 // 24h percent change prefilter
	ResultLimit      int
	Timeframe        string // analysis timeframe
	TrendTimeframe   string // EMA-200 bias timeframe
	ConfirmTimeframe string // breakout confirmation timeframe
	KlineLimit       int
	TrendKlineLimit  int
	WhaleScoreGate   float64 // scores above this escalate to whale detection
}

// DefaultConfig returns the production tuning. Ten workers keeps a full
// scan under the exchange's per-second request budget.
func DefaultConfig() Config {
	return Config{
		Workers:          10,
		MinQuoteVolume:   5_000_000,
		MinAbsChangePct:  1.0,
		ResultLimit:      20,
		Timeframe:        "15m",
		TrendTimeframe:   "4h",
		ConfirmTimeframe: "5m",
		KlineLimit:       100,
		TrendKlineLimit:  250,
		WhaleScoreGate:   15,
	}
}

// Result is one scored symbol from a scan.
type Result struct {
	ScanID          string        `json:"scan_id"`
	Symbol          string        `json:"symbol"`
	Score           float64       `json:"score"`
	Price           float64       `json:"price"`
	VolumeRatio     float64       `json:"volume_ratio"`
	Squeeze         bool          `json:"squeeze"`
	TrendBias       TrendBias     `json:"trend_bias"`
	RSI             float64       `json:"rsi"`
	ADX             float64       `json:"adx"`
	ATRPercent      float64       `json:"atr_percent"`
	EfficiencyRatio float64       `json:"efficiency_ratio"`
	VolumeZScore    float64       `json:"volume_z_score"`
	Whale           *whale.Signal `json:"whale,omitempty"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Screener runs the concurrent symbol scan.
type Screener struct {
	cfg      Config
	fetcher  *fetch.Fetcher
	markets  binance.MarketDataProvider
	tickers  *stream.TickerState
	detector *whale.Detector
	logger   zerolog.Logger
}

// NewScreener creates a screener.
func NewScreener(cfg Config, fetcher *fetch.Fetcher, markets binance.MarketDataProvider, tickers *stream.TickerState, detector *whale.Detector, logger zerolog.Logger) *Screener {
	return &Screener{
		cfg:      cfg,
		fetcher:  fetcher,
		markets:  markets,
		tickers:  tickers,
		detector: detector,
		logger:   logger.With().Str("component", "screener").Logger(),
	}
}

// Scan analyzes candidates on a bounded worker pool and returns the scored
// survivors sorted by score descending, truncated to the result limit.
// Per-symbol failures are logged and skipped, never fail the scan.
func (s *Screener) Scan(ctx context.Context, candidates []string) []Result {
	scanID := uuid.NewString()
	started := time.Now()

	filtered := s.prefilter(candidates)
	s.logger.Info().
		Str("scan_id", scanID).
		Int("candidates", len(candidates)).
		Int("after_prefilter", len(filtered)).
		Msg("scan started")

	jobs := make(chan string)
	resultCh := make(chan Result, len(filtered))
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				if ctx.Err() != nil {
					return
				}
				if r := s.analyze(ctx, scanID, symbol); r != nil {
					resultCh <- *r
				}
			}
		}()
	}

feed:
	for _, symbol := range filtered {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(resultCh)

	results := make([]Result, 0, len(resultCh))
	for r := range resultCh {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > s.cfg.ResultLimit {
		results = results[:s.cfg.ResultLimit]
	}

	s.logger.Info().
		Str("scan_id", scanID).
		Int("results", len(results)).
		Dur("elapsed", time.Since(started)).
		Msg("scan finished")
	return results
}

// prefilter drops candidates whose streamed 24h stats fall below the volume
// or movement thresholds. Symbols with no ticker entry yet are kept; the
// per-symbol analysis is their filter.
func (s *Screener) prefilter(candidates []string) []string {
	kept := make([]string, 0, len(candidates))
	for _, symbol := range candidates {
		t, ok := s.tickers.Get(symbol)
		if !ok {
			kept = append(kept, symbol)
			continue
		}
		if t.QuoteVolume < s.cfg.MinQuoteVolume {
			continue
		}
		change := t.PriceChangePercent
		if change < 0 {
			change = -change
		}
		if change < s.cfg.MinAbsChangePct {
			continue
		}
		kept = append(kept, symbol)
	}
	return kept
}

func (s *Screener) analyze(ctx context.Context, scanID, symbol string) *Result {
	klines, err := s.klines(ctx, symbol, s.cfg.Timeframe, s.cfg.KlineLimit)
	if err != nil {
		s.logger.Debug().Str("symbol", symbol).Err(err).Msg("kline fetch failed")
		return nil
	}
	if len(klines) < 30 {
		return nil
	}
	price := klines[len(klines)-1].Close

	r := &Result{
		ScanID:          scanID,
		Symbol:          symbol,
		Price:           price,
		VolumeRatio:     indicators.VolumeRatio(klines, 20),
		RSI:             indicators.RSI(klines, 14),
		ADX:             indicators.ADX(klines, 14),
		ATRPercent:      indicators.ATRPercent(klines, 14),
		EfficiencyRatio: indicators.EfficiencyRatio(klines, 10),
		VolumeZScore:    indicators.VolumeZScore(klines, 20),
		TrendBias:       s.trendBias(ctx, symbol, price),
		GeneratedAt:     time.Now().UTC(),
	}
	r.Squeeze = indicators.Bollinger(klines, 20, 2.0).Bandwidth() < 2.0

	if rejected := s.reject(r); rejected {
		return nil
	}

	r.Score = baseScore(r)
	if r.Score > s.cfg.WhaleScoreGate {
		sig := s.detector.Detect(ctx, symbol, price)
		if sig.IsDirectional() && !s.confirmBreakout(ctx, symbol, sig.Kind) {
			sig.Kind = whale.SignalNeutral
			sig.Reasoning = append(sig.Reasoning, "short-timeframe breakout unconfirmed")
		}
		r.Whale = sig
		r.Score += whaleBoost(sig)
	}
	return r
}

// reject applies the hard gates: choppy price action and dead volume are
// only forgiven inside a squeeze, and dust-range symbols never qualify.
func (s *Screener) reject(r *Result) bool {
	if r.EfficiencyRatio < 0.25 && !r.Squeeze {
		return true
	}
	if r.VolumeRatio < 0.5 && !r.Squeeze {
		return true
	}
	if r.ATRPercent < 0.15 {
		return true
	}
	return false
}

// baseScore computes the composite score before any whale contribution.
func baseScore(r *Result) float64 {
	score := r.VolumeRatio*5 + r.ADX/5

	if r.Squeeze {
		score += 40
		if r.VolumeZScore > 2.0 {
			score += 30
		}
	}
	switch {
	case r.EfficiencyRatio > 0.7:
		score += 40
	case r.EfficiencyRatio > 0.5:
		score += 20
	}
	// An RSI extreme against the higher-timeframe trend is exhaustion; in
	// its direction it is a pullback entry.
	if (r.TrendBias == TrendBullish && r.RSI <= 30) || (r.TrendBias == TrendBearish && r.RSI >= 70) {
		score += 15
	}
	if r.VolumeZScore > 3.0 {
		score += 35
	}
	return score
}

// whaleBoost converts a whale signal into a confidence-gated score addition.
func whaleBoost(sig *whale.Signal) float64 {
	switch sig.Kind {
	case whale.SignalPumpImminent, whale.SignalDumpImminent:
		if sig.Confidence >= 60 {
			boost := 25 + float64(sig.Confidence-60)*0.5
			if boost > 50 {
				boost = 50
			}
			return boost
		}
	case whale.SignalSqueezeLongs, whale.SignalSqueezeShorts:
		if sig.Confidence >= 50 {
			boost := 10 + float64(sig.Confidence-50)*0.3
			if boost > 25 {
				boost = 25
			}
			return boost
		}
	}
	return 0
}

// trendBias compares price with the higher-timeframe EMA-200.
func (s *Screener) trendBias(ctx context.Context, symbol string, price float64) TrendBias {
	klines, err := s.klines(ctx, symbol, s.cfg.TrendTimeframe, s.cfg.TrendKlineLimit)
	if err != nil || len(klines) < 200 {
		return TrendNeutral
	}
	ema := indicators.EMA(klines, 200)
	switch {
	case price > ema:
		return TrendBullish
	case price < ema:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// confirmBreakout checks a strong directional whale call against the latest
// confirmation candles: the newest close must break the prior candle's
// range in the signal's direction. Equal prints do not confirm.
func (s *Screener) confirmBreakout(ctx context.Context, symbol string, kind whale.SignalKind) bool {
	klines, err := s.klines(ctx, symbol, s.cfg.ConfirmTimeframe, 3)
	if err != nil || len(klines) < 2 {
		return false
	}
	last := klines[len(klines)-1]
	prior := klines[len(klines)-2]
	if kind == whale.SignalPumpImminent {
		return last.Close > prior.High
	}
	return last.Close < prior.Low
}

func (s *Screener) klines(ctx context.Context, symbol, timeframe string, limit int) ([]binance.Kline, error) {
	var klines []binance.Kline
	key := fmt.Sprintf("klines:%s:%s:%d", symbol, timeframe, limit)
	err := s.fetcher.Call(ctx, key, 30*time.Second, &klines, func(ctx context.Context) (interface{}, error) {
		return s.markets.GetKlines(ctx, symbol, timeframe, limit)
	})
	return klines, err
}
