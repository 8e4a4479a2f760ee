// Package whale classifies short-horizon microstructure pressure for a
// symbol: forced liquidations, order-book imbalance, large trade flow,
// funding and positioning extremes.
package whale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-sentry/internal/binance"
	"market-sentry/internal/fetch"
	"market-sentry/internal/stream"
)

// SignalKind classifies the detected microstructure setup.
type SignalKind string

const (
	SignalNeutral       SignalKind = "NEUTRAL"
	SignalPumpImminent  SignalKind = "PUMP_IMMINENT"
	SignalDumpImminent  SignalKind = "DUMP_IMMINENT"
	SignalSqueezeLongs  SignalKind = "SQUEEZE_LONGS"
	SignalSqueezeShorts SignalKind = "SQUEEZE_SHORTS"
)

// PressureClass classifies the liquidation window.
type PressureClass string

const (
	PressureNone       PressureClass = "NONE"
	PressureLongHeavy  PressureClass = "LONG_HEAVY"
	PressureShortHeavy PressureClass = "SHORT_HEAVY"
	PressureBalanced   PressureClass = "BALANCED"
)

// TradeBias classifies recent large trade flow.
type TradeBias string

const (
	BiasBuying  TradeBias = "BUYING"
	BiasSelling TradeBias = "SELLING"
	BiasMixed   TradeBias = "MIXED"
)

// Signal is the detector's classified output. One instance per evaluation,
// never persisted.
type Signal struct {
	Symbol              string        `json:"symbol"`
	Kind                SignalKind    `json:"kind"`
	Confidence          int           `json:"confidence"` // 0-100
	LiquidationPressure PressureClass `json:"liquidation_pressure"`
	OrderImbalance      float64       `json:"order_imbalance"` // -100..100
	LargeTradeBias      TradeBias     `json:"large_trade_bias"`
	FundingRate         float64       `json:"funding_rate"`
	LongShortRatio      float64       `json:"long_short_ratio"`
	Reasoning           []string      `json:"reasoning"`
}

// IsDirectional reports whether the signal is a strong pump/dump call.
func (s *Signal) IsDirectional() bool {
	return s.Kind == SignalPumpImminent || s.Kind == SignalDumpImminent
}

// Config holds the detector thresholds.
type Config struct {
	MinLiquidationNotional float64 // window ignored below this total
	LongHeavyRatio         float64 // long/short notional above -> LONG_HEAVY
	ShortHeavyRatio        float64 // long/short notional below -> SHORT_HEAVY
	DepthLevels            int
	ImbalanceTrigger       float64 // percent
	LargeTradeNotional     float64
	TradesLimit            int
	WallNotional           float64
	WallProximityPct       float64
	FundingExtreme         float64 // |rate| for the strong tier
	FundingElevated        float64 // |rate| for the mild tier
	RatioCrowdedShort      float64 // below -> strong contrarian bullish
	RatioLeanShort         float64 // below -> mild contrarian bullish
	RatioLeanLong          float64 // above -> mild contrarian bearish
	RatioCrowdedLong       float64 // above -> strong contrarian bearish
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinLiquidationNotional: 10_000,
		LongHeavyRatio:         2.0,
		ShortHeavyRatio:        0.5,
		DepthLevels:            20,
		ImbalanceTrigger:       15,
		LargeTradeNotional:     50_000,
		TradesLimit:            100,
		WallNotional:           100_000,
		WallProximityPct:       1.0,
		FundingExtreme:         0.0005,
		FundingElevated:        0.0002,
		RatioCrowdedShort:      0.67,
		RatioLeanShort:         0.85,
		RatioLeanLong:          1.18,
		RatioCrowdedLong:       1.5,
	}
}

// Detector combines the liquidation window with fetched depth, trade flow,
// funding and positioning data into a classified Signal.
type Detector struct {
	cfg     Config
	fetcher *fetch.Fetcher
	markets binance.MarketDataProvider
	window  *stream.LiquidationWindow
	logger  zerolog.Logger
}

// NewDetector creates a whale detector.
func NewDetector(cfg Config, fetcher *fetch.Fetcher, markets binance.MarketDataProvider, window *stream.LiquidationWindow, logger zerolog.Logger) *Detector {
	return &Detector{
		cfg:     cfg,
		fetcher: fetcher,
		markets: markets,
		window:  window,
		logger:  logger.With().Str("component", "whale").Logger(),
	}
}

// marketInputs carries the results of the concurrent sub-fetches. A nil
// pointer means that sub-fetch failed and its contribution degrades to the
// neutral default.
type marketInputs struct {
	book    *binance.OrderBookDepth
	trades  []binance.AggTrade
	funding *binance.FundingRate
	ratio   *binance.LongShortRatio
}

// Detect evaluates symbol and returns a fresh Signal. Sub-fetches run
// concurrently; any single failure degrades that contribution without
// failing the detection.
func (d *Detector) Detect(ctx context.Context, symbol string, currentPrice float64) *Signal {
	sig := &Signal{
		Symbol:              symbol,
		Kind:                SignalNeutral,
		LiquidationPressure: PressureNone,
		LargeTradeBias:      BiasMixed,
		Reasoning:           []string{},
	}

	inputs := d.gather(ctx, symbol, sig)

	pump, dump := 0, 0
	pressure := d.window.Pressure(symbol)
	pressurePump, pressureDump := d.scoreLiquidations(sig, pressure, &pump, &dump)
	d.scoreOrderBook(sig, inputs.book, currentPrice, &pump, &dump)
	d.scoreLargeTrades(sig, inputs.trades, &pump, &dump)
	d.scoreFunding(sig, inputs.funding, &pump, &dump)
	d.scorePositioning(sig, inputs.ratio, &pump, &dump)

	d.classify(sig, pressure, pump, dump, pressurePump, pressureDump)
	return sig
}

// gather runs the four sub-fetches in parallel through the fetch layer.
func (d *Detector) gather(ctx context.Context, symbol string, sig *Signal) *marketInputs {
	inputs := &marketInputs{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	degrade := func(what string, err error) {
		mu.Lock()
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("%s unavailable, treated as neutral", what))
		mu.Unlock()
		d.logger.Debug().Str("symbol", symbol).Err(err).Msgf("%s fetch failed", what)
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		var book binance.OrderBookDepth
		err := d.fetcher.Call(ctx, "depth:"+symbol, 10*time.Second, &book, func(ctx context.Context) (interface{}, error) {
			return d.markets.GetOrderBook(ctx, symbol, d.cfg.DepthLevels)
		})
		if err != nil {
			degrade("order book", err)
			return
		}
		inputs.book = &book
	}()
	go func() {
		defer wg.Done()
		var trades []binance.AggTrade
		err := d.fetcher.Call(ctx, "trades:"+symbol, 10*time.Second, &trades, func(ctx context.Context) (interface{}, error) {
			return d.markets.GetRecentTrades(ctx, symbol, d.cfg.TradesLimit)
		})
		if err != nil {
			degrade("trade flow", err)
			return
		}
		inputs.trades = trades
	}()
	go func() {
		defer wg.Done()
		var funding binance.FundingRate
		err := d.fetcher.Call(ctx, "funding:"+symbol, 60*time.Second, &funding, func(ctx context.Context) (interface{}, error) {
			return d.markets.GetFundingRate(ctx, symbol)
		})
		if err != nil {
			degrade("funding rate", err)
			return
		}
		inputs.funding = &funding
	}()
	go func() {
		defer wg.Done()
		var ratio binance.LongShortRatio
		err := d.fetcher.Call(ctx, "lsr:"+symbol, 60*time.Second, &ratio, func(ctx context.Context) (interface{}, error) {
			return d.markets.GetLongShortRatio(ctx, symbol)
		})
		if err != nil {
			degrade("long/short ratio", err)
			return
		}
		inputs.ratio = &ratio
	}()
	wg.Wait()

	return inputs
}

// scoreLiquidations classifies the window and adds the cascade scores.
// Liquidated shorts are fuel for a move up, liquidated longs for a move
// down. Returns the contributions so the squeeze check can look at the
// follow-through beyond the cascade itself.
func (d *Detector) scoreLiquidations(sig *Signal, p stream.Pressure, pump, dump *int) (pressurePump, pressureDump int) {
	total := p.Total()
	if total < d.cfg.MinLiquidationNotional {
		sig.LiquidationPressure = PressureNone
		return 0, 0
	}

	ratio := longShortNotionalRatio(p)
	switch {
	case ratio > d.cfg.LongHeavyRatio:
		sig.LiquidationPressure = PressureLongHeavy
		*dump += 30
		pressureDump = 30
		sig.Reasoning = append(sig.Reasoning,
			fmt.Sprintf("long liquidations dominate ($%.0f vs $%.0f)", p.LongNotional, p.ShortNotional))
	case ratio < d.cfg.ShortHeavyRatio:
		sig.LiquidationPressure = PressureShortHeavy
		*pump += 30
		pressurePump = 30
		sig.Reasoning = append(sig.Reasoning,
			fmt.Sprintf("short liquidations dominate ($%.0f vs $%.0f)", p.ShortNotional, p.LongNotional))
	default:
		sig.LiquidationPressure = PressureBalanced
	}
	return pressurePump, pressureDump
}

// longShortNotionalRatio returns long/short with a huge sentinel when the
// short side is empty.
func longShortNotionalRatio(p stream.Pressure) float64 {
	if p.ShortNotional == 0 {
		if p.LongNotional == 0 {
			return 1
		}
		return 1e9
	}
	return p.LongNotional / p.ShortNotional
}

// OrderImbalance computes the depth-weighted imbalance percentage over a
// snapshot: positive means resting bids outweigh asks.
func OrderImbalance(book *binance.OrderBookDepth) float64 {
	var bidNotional, askNotional float64
	for _, b := range book.Bids {
		bidNotional += b.Notional()
	}
	for _, a := range book.Asks {
		askNotional += a.Notional()
	}
	total := bidNotional + askNotional
	if total == 0 {
		return 0
	}
	return (bidNotional - askNotional) / total * 100
}

func (d *Detector) scoreOrderBook(sig *Signal, book *binance.OrderBookDepth, currentPrice float64, pump, dump *int) {
	if book == nil {
		return
	}

	imbalance := OrderImbalance(book)
	sig.OrderImbalance = imbalance
	if imbalance > d.cfg.ImbalanceTrigger {
		*pump += 25
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("bid-side imbalance %.1f%%", imbalance))
	} else if imbalance < -d.cfg.ImbalanceTrigger {
		*dump += 25
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("ask-side imbalance %.1f%%", imbalance))
	}

	if currentPrice > 0 {
		if wall := findWall(book.Bids, currentPrice, d.cfg.WallNotional, d.cfg.WallProximityPct); wall > 0 {
			*pump += 20
			sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("buy wall $%.0f near price", wall))
		}
		if wall := findWall(book.Asks, currentPrice, d.cfg.WallNotional, d.cfg.WallProximityPct); wall > 0 {
			*dump += 20
			sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("sell wall $%.0f near price", wall))
		}
	}
}

// findWall returns the notional of the first level at or above wallNotional
// within proximityPct of price, 0 when none exists.
func findWall(levels []binance.BookLevel, price, wallNotional, proximityPct float64) float64 {
	for _, l := range levels {
		distance := absFloat(l.Price-price) / price * 100
		if distance <= proximityPct && l.Notional() >= wallNotional {
			return l.Notional()
		}
	}
	return 0
}

func (d *Detector) scoreLargeTrades(sig *Signal, trades []binance.AggTrade, pump, dump *int) {
	if len(trades) == 0 {
		return
	}

	var buyNotional, sellNotional float64
	for _, t := range trades {
		if t.Notional() < d.cfg.LargeTradeNotional {
			continue
		}
		if t.IsTakerBuy() {
			buyNotional += t.Notional()
		} else {
			sellNotional += t.Notional()
		}
	}
	if buyNotional == 0 && sellNotional == 0 {
		return
	}

	ratio := 1.0
	switch {
	case sellNotional == 0:
		ratio = 1e9
	case buyNotional == 0:
		ratio = 0
	default:
		ratio = buyNotional / sellNotional
	}

	switch {
	case ratio > 1.5:
		sig.LargeTradeBias = BiasBuying
		*pump += 25
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("large buyers dominant ($%.0f vs $%.0f)", buyNotional, sellNotional))
	case ratio < 0.67:
		sig.LargeTradeBias = BiasSelling
		*dump += 25
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("large sellers dominant ($%.0f vs $%.0f)", sellNotional, buyNotional))
	default:
		sig.LargeTradeBias = BiasMixed
	}
}

// scoreFunding interprets funding contrarian: crowded shorts pay to stay
// short, which is bullish pressure, and vice versa.
func (d *Detector) scoreFunding(sig *Signal, funding *binance.FundingRate, pump, dump *int) {
	if funding == nil {
		return
	}
	sig.FundingRate = funding.Rate

	switch {
	case funding.Rate <= -d.cfg.FundingExtreme:
		*pump += 20
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("deeply negative funding %.4f%%", funding.Rate*100))
	case funding.Rate <= -d.cfg.FundingElevated:
		*pump += 10
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("negative funding %.4f%%", funding.Rate*100))
	case funding.Rate >= d.cfg.FundingExtreme:
		*dump += 20
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("deeply positive funding %.4f%%", funding.Rate*100))
	case funding.Rate >= d.cfg.FundingElevated:
		*dump += 10
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("positive funding %.4f%%", funding.Rate*100))
	}
}

// scorePositioning interprets the account long/short ratio contrarian.
func (d *Detector) scorePositioning(sig *Signal, ratio *binance.LongShortRatio, pump, dump *int) {
	if ratio == nil || ratio.Ratio <= 0 {
		return
	}
	sig.LongShortRatio = ratio.Ratio

	switch {
	case ratio.Ratio <= d.cfg.RatioCrowdedShort:
		*pump += 20
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("crowd heavily short (L/S %.2f)", ratio.Ratio))
	case ratio.Ratio <= d.cfg.RatioLeanShort:
		*pump += 10
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("crowd leaning short (L/S %.2f)", ratio.Ratio))
	case ratio.Ratio >= d.cfg.RatioCrowdedLong:
		*dump += 20
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("crowd heavily long (L/S %.2f)", ratio.Ratio))
	case ratio.Ratio >= d.cfg.RatioLeanLong:
		*dump += 10
		sig.Reasoning = append(sig.Reasoning, fmt.Sprintf("crowd leaning long (L/S %.2f)", ratio.Ratio))
	}
}

// classify turns the accumulated scores into the final signal kind. A
// one-sided liquidation window whose directional evidence beyond the
// cascade itself stayed low is a squeeze, not an entry.
func (d *Detector) classify(sig *Signal, pressure stream.Pressure, pump, dump, pressurePump, pressureDump int) {
	switch {
	case pump >= 60 && pump >= dump:
		sig.Kind = SignalPumpImminent
		sig.Confidence = minInt(95, pump)
	case dump >= 60:
		sig.Kind = SignalDumpImminent
		sig.Confidence = minInt(95, dump)
	case sig.LiquidationPressure == PressureLongHeavy && dump-pressureDump < 30:
		sig.Kind = SignalSqueezeLongs
		sig.Confidence = 50 + minInt(45, int(pressure.Total()/100_000*10))
		sig.Reasoning = append(sig.Reasoning, "long liquidation cascade without directional follow-through")
	case sig.LiquidationPressure == PressureShortHeavy && pump-pressurePump < 30:
		sig.Kind = SignalSqueezeShorts
		sig.Confidence = 50 + minInt(45, int(pressure.Total()/100_000*10))
		sig.Reasoning = append(sig.Reasoning, "short liquidation cascade without directional follow-through")
	default:
		sig.Kind = SignalNeutral
		sig.Confidence = 100 - maxInt(pump, dump)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
