package screener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-sentry/internal/binance"
	"market-sentry/internal/fetch"
	"market-sentry/internal/stream"
	"market-sentry/internal/whale"
)

// fakeMarkets serves klines per interval; other market data fails so the
// whale detector degrades to neutral.
type fakeMarkets struct {
	klines map[string][]binance.Kline
}

var errFakeDown = errors.New("upstream down")

func (f *fakeMarkets) GetKlines(_ context.Context, _ string, interval string, _ int) ([]binance.Kline, error) {
	k, ok := f.klines[interval]
	if !ok {
		return nil, errFakeDown
	}
	return k, nil
}
func (f *fakeMarkets) GetOrderBook(context.Context, string, int) (*binance.OrderBookDepth, error) {
	return nil, errFakeDown
}
func (f *fakeMarkets) GetRecentTrades(context.Context, string, int) ([]binance.AggTrade, error) {
	return nil, errFakeDown
}
func (f *fakeMarkets) GetFundingRate(context.Context, string) (*binance.FundingRate, error) {
	return nil, errFakeDown
}
func (f *fakeMarkets) GetLongShortRatio(context.Context, string) (*binance.LongShortRatio, error) {
	return nil, errFakeDown
}
func (f *fakeMarkets) Get24hTickers(context.Context) ([]binance.Ticker24h, error) {
	return nil, errFakeDown
}

func risingKlines(n int) []binance.Kline {
	klines := make([]binance.Kline, n)
	for i := range klines {
		c := 100 + float64(i)
		klines[i] = binance.Kline{Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 100}
	}
	return klines
}

func newTestScreener(markets binance.MarketDataProvider, tickers *stream.TickerState) *Screener {
	fetcher := fetch.NewFetcher(nil, fetch.NewCircuitBreaker(100, time.Minute), zerolog.Nop())
	window := stream.NewLiquidationWindow(5 * time.Minute)
	detector := whale.NewDetector(whale.DefaultConfig(), fetcher, markets, window, zerolog.Nop())
	return NewScreener(DefaultConfig(), fetcher, markets, tickers, detector, zerolog.Nop())
}

func TestPrefilter(t *testing.T) {
	tickers := stream.NewTickerState()
	tickers.Set("BIGUSDT", stream.TickerEntry{QuoteVolume: 50_000_000, PriceChangePercent: 4})
	tickers.Set("THINUSDT", stream.TickerEntry{QuoteVolume: 100_000, PriceChangePercent: 4})
	tickers.Set("FLATUSDT", stream.TickerEntry{QuoteVolume: 50_000_000, PriceChangePercent: 0.2})
	tickers.Set("DOWNUSDT", stream.TickerEntry{QuoteVolume: 50_000_000, PriceChangePercent: -4})

	s := newTestScreener(&fakeMarkets{}, tickers)
	kept := s.prefilter([]string{"BIGUSDT", "THINUSDT", "FLATUSDT", "DOWNUSDT", "UNSEENUSDT"})

	want := map[string]bool{"BIGUSDT": true, "DOWNUSDT": true, "UNSEENUSDT": true}
	if len(kept) != len(want) {
		t.Fatalf("kept %v, want keys %v", kept, want)
	}
	for _, sym := range kept {
		if !want[sym] {
			t.Errorf("symbol %s should have been filtered out", sym)
		}
	}
}

func TestRejectionRules(t *testing.T) {
	s := newTestScreener(&fakeMarkets{}, stream.NewTickerState())

	cases := []struct {
		name   string
		result Result
		want   bool
	}{
		{"choppy without squeeze", Result{EfficiencyRatio: 0.1, VolumeRatio: 1, ATRPercent: 1}, true},
		{"choppy inside squeeze survives", Result{EfficiencyRatio: 0.1, VolumeRatio: 1, ATRPercent: 1, Squeeze: true}, false},
		{"dead volume without squeeze", Result{EfficiencyRatio: 0.5, VolumeRatio: 0.2, ATRPercent: 1}, true},
		{"dead volume inside squeeze survives", Result{EfficiencyRatio: 0.5, VolumeRatio: 0.2, ATRPercent: 1, Squeeze: true}, false},
		{"dust range always rejected", Result{EfficiencyRatio: 0.9, VolumeRatio: 2, ATRPercent: 0.1, Squeeze: true}, true},
		{"healthy candidate kept", Result{EfficiencyRatio: 0.6, VolumeRatio: 1.2, ATRPercent: 0.8}, false},
	}
	for _, tc := range cases {
		if got := s.reject(&tc.result); got != tc.want {
			t.Errorf("%s: reject=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBaseScore(t *testing.T) {
	// Squeeze with a volume spike: 40 + 30 + baseline 1*5 + 20/5 = 79.
	r := &Result{VolumeRatio: 1, ADX: 20, Squeeze: true, VolumeZScore: 2.5}
	if got := baseScore(r); got != 79 {
		t.Errorf("squeeze score = %v, want 79", got)
	}

	// Efficient trend with RSI pullback: 40 + 15 + 1*5 + 20/5 = 64.
	r = &Result{VolumeRatio: 1, ADX: 20, EfficiencyRatio: 0.8, TrendBias: TrendBullish, RSI: 28}
	if got := baseScore(r); got != 64 {
		t.Errorf("trend score = %v, want 64", got)
	}

	// RSI extreme against the trend earns nothing.
	r = &Result{VolumeRatio: 1, ADX: 20, EfficiencyRatio: 0.8, TrendBias: TrendBullish, RSI: 75}
	if got := baseScore(r); got != 49 {
		t.Errorf("counter-trend extreme score = %v, want 49", got)
	}

	// Huge volume z-score: 35 + 1*5 + 20/5 = 44.
	r = &Result{VolumeRatio: 1, ADX: 20, VolumeZScore: 3.5}
	if got := baseScore(r); got != 44 {
		t.Errorf("volume spike score = %v, want 44", got)
	}
}

func TestWhaleBoost(t *testing.T) {
	cases := []struct {
		kind       whale.SignalKind
		confidence int
		want       float64
	}{
		{whale.SignalPumpImminent, 60, 25},
		{whale.SignalPumpImminent, 80, 35},
		{whale.SignalPumpImminent, 95, 42.5},
		{whale.SignalPumpImminent, 59, 0},
		{whale.SignalDumpImminent, 70, 30},
		{whale.SignalSqueezeLongs, 50, 10},
		{whale.SignalSqueezeShorts, 90, 22},
		{whale.SignalSqueezeLongs, 49, 0},
		{whale.SignalNeutral, 100, 0},
	}
	for _, tc := range cases {
		sig := &whale.Signal{Kind: tc.kind, Confidence: tc.confidence}
		if got := whaleBoost(sig); got != tc.want {
			t.Errorf("%s at %d%%: boost=%v, want %v", tc.kind, tc.confidence, got, tc.want)
		}
	}
}

func TestConfirmBreakout(t *testing.T) {
	prior := binance.Kline{Open: 100, High: 105, Low: 95, Close: 100, Volume: 100}
	confirmed := binance.Kline{Open: 100, High: 107, Low: 99, Close: 106, Volume: 100}
	unconfirmed := binance.Kline{Open: 100, High: 105, Low: 99, Close: 105, Volume: 100}

	s := newTestScreener(&fakeMarkets{klines: map[string][]binance.Kline{
		"5m": {prior, confirmed},
	}}, stream.NewTickerState())
	if !s.confirmBreakout(context.Background(), "AUSDT", whale.SignalPumpImminent) {
		t.Error("close 106 above prior high 105 must confirm a pump")
	}

	// Equal print must not confirm: strict inequality.
	s = newTestScreener(&fakeMarkets{klines: map[string][]binance.Kline{
		"5m": {prior, unconfirmed},
	}}, stream.NewTickerState())
	if s.confirmBreakout(context.Background(), "BUSDT", whale.SignalPumpImminent) {
		t.Error("close equal to prior high must not confirm")
	}

	breakdown := binance.Kline{Open: 100, High: 101, Low: 93, Close: 94, Volume: 100}
	s = newTestScreener(&fakeMarkets{klines: map[string][]binance.Kline{
		"5m": {prior, breakdown},
	}}, stream.NewTickerState())
	if !s.confirmBreakout(context.Background(), "CUSDT", whale.SignalDumpImminent) {
		t.Error("close 94 below prior low 95 must confirm a dump")
	}

	// Missing confirmation data never confirms.
	s = newTestScreener(&fakeMarkets{}, stream.NewTickerState())
	if s.confirmBreakout(context.Background(), "DUSDT", whale.SignalPumpImminent) {
		t.Error("missing candles must not confirm")
	}
}

func TestScanScoresAndSorts(t *testing.T) {
	klines := risingKlines(250)
	markets := &fakeMarkets{klines: map[string][]binance.Kline{
		"15m": klines,
		"4h":  klines,
		"5m":  klines[len(klines)-3:],
	}}
	tickers := stream.NewTickerState()
	tickers.Set("UPUSDT", stream.TickerEntry{QuoteVolume: 50_000_000, PriceChangePercent: 5})

	s := newTestScreener(markets, tickers)
	results := s.Scan(context.Background(), []string{"UPUSDT"})

	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	r := results[0]
	if r.Symbol != "UPUSDT" {
		t.Errorf("unexpected symbol %s", r.Symbol)
	}
	if r.ScanID == "" {
		t.Error("result missing scan id")
	}
	if r.Score <= 15 {
		t.Errorf("strong uptrend should score above the whale gate, got %v", r.Score)
	}
	if r.TrendBias != TrendBullish {
		t.Errorf("expected bullish trend bias, got %s", r.TrendBias)
	}
	// Escalated to whale detection, which degrades to neutral here.
	if r.Whale == nil {
		t.Fatal("expected whale signal on a high-scoring symbol")
	}
	if r.Whale.Kind != whale.SignalNeutral {
		t.Errorf("expected neutral whale signal with dead sub-fetches, got %s", r.Whale.Kind)
	}
}

func TestScanHonorsResultLimit(t *testing.T) {
	klines := risingKlines(250)
	markets := &fakeMarkets{klines: map[string][]binance.Kline{
		"15m": klines,
		"4h":  klines,
		"5m":  klines[len(klines)-3:],
	}}
	tickers := stream.NewTickerState()

	cfg := DefaultConfig()
	cfg.ResultLimit = 2
	fetcher := fetch.NewFetcher(nil, fetch.NewCircuitBreaker(100, time.Minute), zerolog.Nop())
	window := stream.NewLiquidationWindow(5 * time.Minute)
	detector := whale.NewDetector(whale.DefaultConfig(), fetcher, markets, window, zerolog.Nop())
	s := NewScreener(cfg, fetcher, markets, tickers, detector, zerolog.Nop())

	results := s.Scan(context.Background(), []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT"})
	if len(results) > 2 {
		t.Errorf("expected at most 2 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted descending at %d", i)
		}
	}
}
