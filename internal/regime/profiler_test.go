package regime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-sentry/internal/binance"
	"market-sentry/internal/fetch"
)

type fakeMarkets struct {
	klines []binance.Kline
	err    error
}

func (f *fakeMarkets) GetKlines(context.Context, string, string, int) ([]binance.Kline, error) {
	return f.klines, f.err
}
func (f *fakeMarkets) GetOrderBook(context.Context, string, int) (*binance.OrderBookDepth, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMarkets) GetRecentTrades(context.Context, string, int) ([]binance.AggTrade, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMarkets) GetFundingRate(context.Context, string) (*binance.FundingRate, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMarkets) GetLongShortRatio(context.Context, string) (*binance.LongShortRatio, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMarkets) Get24hTickers(context.Context) ([]binance.Ticker24h, error) {
	return nil, errors.New("not implemented")
}

func newTestProfiler(markets binance.MarketDataProvider) *Profiler {
	fetcher := fetch.NewFetcher(nil, fetch.NewCircuitBreaker(50, time.Minute), zerolog.Nop())
	return NewProfiler(DefaultConfig(), fetcher, markets, zerolog.Nop())
}

func TestClassifyRegimeRules(t *testing.T) {
	cases := []struct {
		name                         string
		adx, atrPct, bandwidth, roc float64
		want                         Regime
	}{
		{"high adx is explosive", 40, 1.0, 2.0, 0, RegimeExplosive},
		{"big move is explosive", 10, 1.0, 2.0, 4.5, RegimeExplosive},
		{"big drop is explosive", 10, 1.0, 2.0, -4.5, RegimeExplosive},
		{"quiet and directionless is ranging", 15, 1.0, 2.0, 0, RegimeRanging},
		{"established trend", 28, 2.5, 5.0, 1, RegimeTrending},
		{"transition band quiet breaks to ranging", 22, 1.0, 2.0, 0, RegimeRanging},
		{"transition band active breaks to trending", 22, 1.8, 5.0, 1, RegimeTrending},
		{"low adx but wide bands is trending", 15, 3.0, 6.0, 1, RegimeTrending},
	}
	for _, tc := range cases {
		if got := ClassifyRegime(tc.adx, tc.atrPct, tc.bandwidth, tc.roc); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyRegimeIdempotent(t *testing.T) {
	first := ClassifyRegime(27.3, 1.9, 3.8, 1.2)
	for i := 0; i < 5; i++ {
		if got := ClassifyRegime(27.3, 1.9, 3.8, 1.2); got != first {
			t.Fatalf("classification changed between identical calls: %s vs %s", got, first)
		}
	}
}

func TestPercentile(t *testing.T) {
	peers := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := Percentile(5.5, peers); got != 50 {
		t.Errorf("median value percentile = %d, want 50", got)
	}
	if got := Percentile(100, peers); got != 100 {
		t.Errorf("max value percentile = %d, want 100", got)
	}
	if got := Percentile(0, peers); got != 0 {
		t.Errorf("min value percentile = %d, want 0", got)
	}
	if got := Percentile(3, []float64{1, 2}); got != 50 {
		t.Errorf("percentile with <3 peers = %d, want 50", got)
	}
}

func TestClassifyFallsBackOnNoData(t *testing.T) {
	p := newTestProfiler(&fakeMarkets{err: errors.New("down")})
	profile := p.Classify(context.Background(), "BTCUSDT", []string{"15m", "1h"}, nil)

	if profile.Regime != RegimeUnknown {
		t.Errorf("expected UNKNOWN regime on fetch failure, got %s", profile.Regime)
	}
	if profile.SLMultiplier != 2.5 || profile.TPMultiplier != 4.0 {
		t.Errorf("expected conservative default multipliers, got %v/%v", profile.SLMultiplier, profile.TPMultiplier)
	}
	if profile.MLThreshold != 40 {
		t.Errorf("expected default threshold 40, got %d", profile.MLThreshold)
	}
	if err := profile.Validate(); err != nil {
		t.Errorf("default profile must validate: %v", err)
	}
}

func TestClassifyProfileInvariants(t *testing.T) {
	// Plenty of quiet, constant-range candles: a ranging read.
	klines := make([]binance.Kline, 80)
	for i := range klines {
		c := 100.0
		klines[i] = binance.Kline{Open: c, High: c * 1.003, Low: c * 0.997, Close: c, Volume: 100}
	}
	p := newTestProfiler(&fakeMarkets{klines: klines})
	profile := p.Classify(context.Background(), "ETHUSDT", []string{"15m", "1h"}, []float64{0.5, 1.0, 1.5, 2.0})

	if profile.Regime != RegimeRanging {
		t.Errorf("expected RANGING for flat series, got %s", profile.Regime)
	}
	if profile.TPMultiplier <= profile.SLMultiplier {
		t.Errorf("tp multiplier %v must exceed sl multiplier %v", profile.TPMultiplier, profile.SLMultiplier)
	}
	if profile.EntryType != EntryLimit {
		t.Errorf("ranging regime should enter with LIMIT orders, got %s", profile.EntryType)
	}
	if err := profile.Validate(); err != nil {
		t.Errorf("profile failed validation: %v", err)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	klines := make([]binance.Kline, 80)
	for i := range klines {
		c := 100 + float64(i)
		klines[i] = binance.Kline{Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 100}
	}
	p := newTestProfiler(&fakeMarkets{klines: klines})
	peers := []float64{0.5, 1.0, 1.5, 2.0}

	first := p.Classify(context.Background(), "SOLUSDT", []string{"15m"}, peers)
	second := p.Classify(context.Background(), "SOLUSDT", []string{"15m"}, peers)
	if *first != *second {
		t.Errorf("identical inputs produced different profiles:\n%+v\n%+v", first, second)
	}
}

func TestValidateCatchesBrokenProfiles(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RiskProfile)
	}{
		{"tp below sl", func(rp *RiskProfile) { rp.TPMultiplier = rp.SLMultiplier - 0.1 }},
		{"negative sl", func(rp *RiskProfile) { rp.SLMultiplier = -1 }},
		{"threshold too high", func(rp *RiskProfile) { rp.MLThreshold = 120 }},
		{"bad entry type", func(rp *RiskProfile) { rp.EntryType = "ICEBERG" }},
		{"zero position", func(rp *RiskProfile) { rp.MaxPositionUsd = 0 }},
	}
	base := newTestProfiler(&fakeMarkets{}).defaultProfile("BTCUSDT")
	for _, tc := range cases {
		profile := *base
		tc.mutate(&profile)
		if err := profile.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestFakeBreakoutOverride(t *testing.T) {
	p := newTestProfiler(&fakeMarkets{})
	m := timeframeMetrics{regime: RegimeExplosive, adx: 40, atrPercent: 0.8}
	profile := p.buildProfile("XUSDT", m, 80, 10, VolLow, 1.0)

	if profile.MLThreshold != 50 {
		t.Errorf("explosive+low volatility must force threshold 50, got %d", profile.MLThreshold)
	}
	// Base 3.0 scaled by the low-volatility factor 0.8, then widened 1.5x.
	want := 3.0 * 0.8 * 1.5
	if diff := profile.SLMultiplier - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected widened stop %v, got %v", want, profile.SLMultiplier)
	}
}

func TestRangingHighVolatilityCutsPosition(t *testing.T) {
	p := newTestProfiler(&fakeMarkets{})
	m := timeframeMetrics{regime: RegimeRanging, adx: 15, atrPercent: 1.0}
	profile := p.buildProfile("YUSDT", m, 70, 90, VolHigh, 1.0)

	want := p.cfg.BasePositionUsd * 0.7
	if profile.MaxPositionUsd != want {
		t.Errorf("expected position cap %v, got %v", want, profile.MaxPositionUsd)
	}
}
