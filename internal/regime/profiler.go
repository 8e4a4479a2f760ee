// Package regime classifies a symbol's market regime across timeframes and
// derives the adaptive risk parameters (stop/target multipliers, acceptance
// threshold, entry type, position cap) used downstream.
package regime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"market-sentry/internal/binance"
	"market-sentry/internal/fetch"
	"market-sentry/internal/indicators"
)

// Regime is the market regime classification.
type Regime string

const (
	RegimeRanging   Regime = "RANGING"
	RegimeTrending  Regime = "TRENDING"
	RegimeExplosive Regime = "EXPLOSIVE"
	RegimeUnknown   Regime = "UNKNOWN"
)

// VolatilityClass buckets a symbol's ATR% against its peers.
type VolatilityClass string

const (
	VolLow    VolatilityClass = "LOW"
	VolMedium VolatilityClass = "MEDIUM"
	VolHigh   VolatilityClass = "HIGH"
)

// EntryType selects the order type used for entries under this profile.
type EntryType string

const (
	EntryMarket EntryType = "MARKET"
	EntryLimit  EntryType = "LIMIT"
)

// RiskProfile is the profiler's output. TPMultiplier is always strictly
// greater than SLMultiplier; profiles violating that are never emitted.
type RiskProfile struct {
	Symbol               string          `json:"symbol"`
	Regime               Regime          `json:"regime"`
	RegimeConfidence     int             `json:"regime_confidence"`     // 0-100
	VolatilityPercentile int             `json:"volatility_percentile"` // 0-100
	VolatilityClass      VolatilityClass `json:"volatility_class"`
	SLMultiplier         float64         `json:"sl_multiplier"` // ATR multiples
	TPMultiplier         float64         `json:"tp_multiplier"` // ATR multiples
	MLThreshold          int             `json:"ml_threshold"`  // 0-100
	EntryType            EntryType       `json:"entry_type"`
	MaxPositionUsd       float64         `json:"max_position_usd"`
	ATRPercent           float64         `json:"atr_percent"`
	ADX                  float64         `json:"adx"`
}

// Config holds the profiler tuning.
type Config struct {
	ThresholdRanging   int
	ThresholdTrending  int
	ThresholdExplosive int
	BasePositionUsd    float64
	KlineLimit         int
	ATRPeriod          int
	ADXPeriod          int
	ROCPeriod          int
	BollingerPeriod    int
	// VolTrendLookback is how many candles back the comparison ATR% is
	// taken when judging whether volatility is expanding or contracting.
	VolTrendLookback int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		ThresholdRanging:   65,
		ThresholdTrending:  60,
		ThresholdExplosive: 70,
		BasePositionUsd:    1_000,
		KlineLimit:         100,
		ATRPeriod:          14,
		ADXPeriod:          14,
		ROCPeriod:          10,
		BollingerPeriod:    20,
		VolTrendLookback:   10,
	}
}

// Profiler computes risk profiles from kline data fetched through the
// resilient fetch layer.
type Profiler struct {
	cfg     Config
	fetcher *fetch.Fetcher
	markets binance.MarketDataProvider
	logger  zerolog.Logger
}

// NewProfiler creates a regime profiler.
func NewProfiler(cfg Config, fetcher *fetch.Fetcher, markets binance.MarketDataProvider, logger zerolog.Logger) *Profiler {
	return &Profiler{
		cfg:     cfg,
		fetcher: fetcher,
		markets: markets,
		logger:  logger.With().Str("component", "regime").Logger(),
	}
}

// timeframeMetrics holds the indicator snapshot for one timeframe.
type timeframeMetrics struct {
	regime     Regime
	adx        float64
	atrPercent float64
	bandwidth  float64
	roc        float64
}

// Classify evaluates symbol across the given timeframes (first entry is the
// primary) and returns a validated RiskProfile. peerATRPcts is the ATR%
// sample of the current scan universe used for the volatility percentile;
// with fewer than 3 peers the percentile defaults to 50. Never returns nil:
// insufficient data or a fetch failure yields the conservative UNKNOWN
// default.
func (p *Profiler) Classify(ctx context.Context, symbol string, timeframes []string, peerATRPcts []float64) *RiskProfile {
	if len(timeframes) == 0 {
		return p.defaultProfile(symbol)
	}

	metrics := make([]timeframeMetrics, 0, len(timeframes))
	var volTrend float64
	for i, tf := range timeframes {
		klines, err := p.klines(ctx, symbol, tf)
		if err != nil {
			p.logger.Warn().Str("symbol", symbol).Str("timeframe", tf).Err(err).Msg("kline fetch failed")
			continue
		}
		m, ok := p.measure(klines)
		if !ok {
			continue
		}
		metrics = append(metrics, m)
		if i == 0 {
			volTrend = p.volatilityTrend(klines)
		}
	}
	if len(metrics) == 0 {
		p.logger.Warn().Str("symbol", symbol).Msg("no usable timeframe data, using default profile")
		return p.defaultProfile(symbol)
	}

	primary := metrics[0]
	aligned := true
	for _, m := range metrics[1:] {
		if m.regime != primary.regime {
			aligned = false
			break
		}
	}

	confidence := regimeConfidence(primary, aligned)
	percentile := Percentile(primary.atrPercent, peerATRPcts)
	volClass := classifyVolatility(percentile)

	profile := p.buildProfile(symbol, primary, confidence, percentile, volClass, volTrend)
	if err := profile.Validate(); err != nil {
		p.logger.Error().Str("symbol", symbol).Err(err).Msg("profile failed validation, using default")
		return p.defaultProfile(symbol)
	}
	return profile
}

func (p *Profiler) klines(ctx context.Context, symbol, timeframe string) ([]binance.Kline, error) {
	var klines []binance.Kline
	key := fmt.Sprintf("klines:%s:%s:%d", symbol, timeframe, p.cfg.KlineLimit)
	err := p.fetcher.Call(ctx, key, 30*time.Second, &klines, func(ctx context.Context) (interface{}, error) {
		return p.markets.GetKlines(ctx, symbol, timeframe, p.cfg.KlineLimit)
	})
	return klines, err
}

// measure computes the per-timeframe indicator snapshot. ADX needs two full
// periods of data; shorter series are unusable rather than misclassified.
func (p *Profiler) measure(klines []binance.Kline) (timeframeMetrics, bool) {
	if len(klines) < 2*p.cfg.ADXPeriod+1 {
		return timeframeMetrics{}, false
	}

	m := timeframeMetrics{
		adx:        indicators.ADX(klines, p.cfg.ADXPeriod),
		atrPercent: indicators.ATRPercent(klines, p.cfg.ATRPeriod),
		roc:        indicators.ROC(klines, p.cfg.ROCPeriod),
	}
	m.bandwidth = indicators.Bollinger(klines, p.cfg.BollingerPeriod, 2.0).Bandwidth()
	m.regime = ClassifyRegime(m.adx, m.atrPercent, m.bandwidth, m.roc)
	return m, true
}

// ClassifyRegime maps one timeframe's indicator snapshot to a regime. Pure,
// so identical inputs always classify identically.
func ClassifyRegime(adx, atrPercent, bandwidth, roc float64) Regime {
	if adx > 35 || roc > 3 || roc < -3 {
		return RegimeExplosive
	}
	if adx < 20 && atrPercent < 2 && bandwidth < 4 {
		return RegimeRanging
	}
	if adx >= 25 {
		return RegimeTrending
	}
	// 20-25 ADX band: quiet price action reads as ranging, anything else
	// as an early trend.
	if atrPercent < 1.5 && bandwidth < 3.5 {
		return RegimeRanging
	}
	return RegimeTrending
}

// regimeConfidence scores how decisive the classification evidence is.
func regimeConfidence(m timeframeMetrics, aligned bool) int {
	confidence := 50
	if aligned {
		confidence += 20
	}
	if m.adx < 15 || m.adx > 30 {
		confidence += 15
	}
	if m.atrPercent < 1.2 || m.atrPercent > 2.5 {
		confidence += 10
	}
	if m.adx >= 18 && m.adx <= 22 {
		confidence -= 10
	}
	return clampInt(confidence, 0, 100)
}

// Percentile ranks value within peers, 0-100. Fewer than 3 peers is not a
// meaningful distribution and ranks as the median.
func Percentile(value float64, peers []float64) int {
	if len(peers) < 3 {
		return 50
	}
	sorted := make([]float64, len(peers))
	copy(sorted, peers)
	sort.Float64s(sorted)
	below := 0
	for _, v := range sorted {
		if v < value {
			below++
		}
	}
	return below * 100 / len(sorted)
}

func classifyVolatility(percentile int) VolatilityClass {
	switch {
	case percentile < 30:
		return VolLow
	case percentile > 70:
		return VolHigh
	default:
		return VolMedium
	}
}

// volatilityTrend compares the current ATR% with the ATR% measured several
// candles back: >1 means volatility is expanding.
func (p *Profiler) volatilityTrend(klines []binance.Kline) float64 {
	lookback := p.cfg.VolTrendLookback
	if len(klines) < 2*p.cfg.ATRPeriod+lookback {
		return 1
	}
	recent := indicators.ATRPercent(klines, p.cfg.ATRPeriod)
	past := indicators.ATRPercent(klines[:len(klines)-lookback], p.cfg.ATRPeriod)
	if past == 0 {
		return 1
	}
	return recent / past
}

func (p *Profiler) buildProfile(symbol string, m timeframeMetrics, confidence, percentile int, volClass VolatilityClass, volTrend float64) *RiskProfile {
	profile := &RiskProfile{
		Symbol:               symbol,
		Regime:               m.regime,
		RegimeConfidence:     confidence,
		VolatilityPercentile: percentile,
		VolatilityClass:      volClass,
		MaxPositionUsd:       p.cfg.BasePositionUsd,
		ATRPercent:           m.atrPercent,
		ADX:                  m.adx,
	}

	switch m.regime {
	case RegimeRanging:
		profile.SLMultiplier, profile.TPMultiplier = 1.0, 1.5
		profile.MLThreshold = p.cfg.ThresholdRanging
		profile.EntryType = EntryLimit
	case RegimeTrending:
		profile.SLMultiplier, profile.TPMultiplier = 2.0, 3.5
		profile.MLThreshold = p.cfg.ThresholdTrending
		profile.EntryType = EntryMarket
	case RegimeExplosive:
		profile.SLMultiplier, profile.TPMultiplier = 3.0, 5.0
		profile.MLThreshold = p.cfg.ThresholdExplosive
		profile.EntryType = EntryMarket
	default:
		profile.SLMultiplier, profile.TPMultiplier = 2.5, 4.0
		profile.MLThreshold = 40
		profile.EntryType = EntryLimit
	}

	volFactor := 1.0
	switch volClass {
	case VolLow:
		volFactor = 0.8
	case VolHigh:
		volFactor = 1.3
	}
	profile.SLMultiplier *= volFactor
	profile.TPMultiplier *= volFactor

	// Expanding volatility widens both legs, contracting tightens them
	// slightly.
	switch {
	case volTrend > 1.1:
		profile.SLMultiplier *= 1.10
		profile.TPMultiplier *= 1.10
	case volTrend < 0.9:
		profile.SLMultiplier *= 0.95
		profile.TPMultiplier *= 0.95
	}

	// An explosive reading on a low-volatility symbol is the signature of
	// a fake breakout: demand more conviction and give the stop room.
	if m.regime == RegimeExplosive && volClass == VolLow {
		profile.MLThreshold = 50
		profile.SLMultiplier *= 1.5
	}
	// Choppy and violent at the same time is the worst environment to
	// size into.
	if m.regime == RegimeRanging && volClass == VolHigh {
		profile.MaxPositionUsd *= 0.7
	}

	return profile
}

// Validate checks the profile invariants.
func (rp *RiskProfile) Validate() error {
	if rp.SLMultiplier <= 0 || rp.TPMultiplier <= 0 {
		return fmt.Errorf("non-positive multipliers sl=%.2f tp=%.2f", rp.SLMultiplier, rp.TPMultiplier)
	}
	if rp.TPMultiplier <= rp.SLMultiplier {
		return fmt.Errorf("tp multiplier %.2f not above sl multiplier %.2f", rp.TPMultiplier, rp.SLMultiplier)
	}
	if rp.MLThreshold < 0 || rp.MLThreshold > 100 {
		return fmt.Errorf("threshold %d outside [0,100]", rp.MLThreshold)
	}
	if rp.EntryType != EntryMarket && rp.EntryType != EntryLimit {
		return fmt.Errorf("invalid entry type %q", rp.EntryType)
	}
	if rp.MaxPositionUsd <= 0 {
		return fmt.Errorf("non-positive position cap %.2f", rp.MaxPositionUsd)
	}
	return nil
}

// defaultProfile is the conservative fallback used whenever classification
// is impossible or produced an invalid profile.
func (p *Profiler) defaultProfile(symbol string) *RiskProfile {
	return &RiskProfile{
		Symbol:               symbol,
		Regime:               RegimeUnknown,
		RegimeConfidence:     0,
		VolatilityPercentile: 50,
		VolatilityClass:      VolMedium,
		SLMultiplier:         2.5,
		TPMultiplier:         4.0,
		MLThreshold:          40,
		EntryType:            EntryLimit,
		MaxPositionUsd:       p.cfg.BasePositionUsd,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
