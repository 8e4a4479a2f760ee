// Package service wires the components together and runs the scan loop.
// Stream consumers run only on the instance holding the leader lock;
// scanning and evaluation run everywhere.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"market-sentry/config"
	"market-sentry/internal/binance"
	"market-sentry/internal/decision"
	"market-sentry/internal/fetch"
	"market-sentry/internal/leader"
	"market-sentry/internal/regime"
	"market-sentry/internal/screener"
	"market-sentry/internal/stream"
	"market-sentry/internal/whale"
)

// Service owns the component graph and its lifecycle.
type Service struct {
	cfg    *config.Config
	logger zerolog.Logger

	redis    *redis.Client
	markets  binance.MarketDataProvider
	executor binance.OrderExecutor
	fetcher  *fetch.Fetcher
	tickers  *stream.TickerState
	window   *stream.LiquidationWindow
	detector *whale.Detector
	profiler *regime.Profiler
	screener *screener.Screener
	engine   *decision.Engine

	logic     decision.LogicOracle
	vision    decision.VisionOracle // nil means no chart oracle configured
	predictor decision.WinPredictor

	wg sync.WaitGroup
}

// New builds the full component graph from configuration.
func New(cfg *config.Config, logger zerolog.Logger) *Service {
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
	}

	client := binance.NewClient(cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey, cfg.BinanceConfig.TestNet, logger)
	breaker := fetch.NewCircuitBreaker(
		cfg.FetchConfig.FailureThreshold,
		time.Duration(cfg.FetchConfig.RecoverySeconds)*time.Second,
	)
	fetcher := fetch.NewFetcher(redisClient, breaker, logger)

	tickers := stream.NewTickerState()
	window := stream.NewLiquidationWindow(time.Duration(cfg.ServiceConfig.LiquidationWindowSecs) * time.Second)

	detector := whale.NewDetector(whale.DefaultConfig(), fetcher, client, window, logger)

	regimeCfg := regime.DefaultConfig()
	regimeCfg.ThresholdRanging = cfg.RegimeConfig.ThresholdRanging
	regimeCfg.ThresholdTrending = cfg.RegimeConfig.ThresholdTrending
	regimeCfg.ThresholdExplosive = cfg.RegimeConfig.ThresholdExplosive
	regimeCfg.BasePositionUsd = cfg.RegimeConfig.BasePositionUsd
	profiler := regime.NewProfiler(regimeCfg, fetcher, client, logger)

	screenerCfg := screener.DefaultConfig()
	screenerCfg.Workers = cfg.ScreenerConfig.Workers
	screenerCfg.MinQuoteVolume = cfg.ScreenerConfig.MinQuoteVolume
	screenerCfg.MinAbsChangePct = cfg.ScreenerConfig.MinAbsChangePct
	screenerCfg.ResultLimit = cfg.ScreenerConfig.ResultLimit
	screenerCfg.Timeframe = cfg.ScreenerConfig.Timeframe
	screenerCfg.TrendTimeframe = cfg.ScreenerConfig.TrendTimeframe
	scr := screener.NewScreener(screenerCfg, fetcher, client, tickers, detector, logger)

	svc := &Service{
		cfg:       cfg,
		logger:    logger.With().Str("component", "service").Logger(),
		redis:     redisClient,
		markets:   client,
		fetcher:   fetcher,
		tickers:   tickers,
		window:    window,
		detector:  detector,
		profiler:  profiler,
		screener:  scr,
		engine:    decision.NewEngine(cfg.DecisionConfig.StaticThreshold, logger),
		logic:     decision.NewRuleBasedLogic(),
		predictor: decision.NewRuleBasedPredictor(),
	}
	if cfg.TradingConfig.Enabled && !cfg.TradingConfig.DryRun {
		svc.executor = binance.NewExecutor(client, 3, logger)
	}
	return svc
}

// Run starts the streams and the scan loop and blocks until ctx is
// cancelled, then shuts down within the configured timeout.
func (s *Service) Run(ctx context.Context) error {
	streamCtx, stopStreams := context.WithCancel(ctx)
	defer stopStreams()

	s.startStreams(ctx, streamCtx, stopStreams)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scanLoop(ctx)
	}()

	<-ctx.Done()
	s.logger.Info().Msg("shutdown requested")
	stopStreams()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timeout := time.Duration(s.cfg.ServiceConfig.ShutdownTimeoutSeconds) * time.Second
	select {
	case <-done:
		s.logger.Info().Msg("shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

// startStreams launches the websocket consumers. With redis available the
// leadership campaign runs in the background so a non-leader replica keeps
// scanning on REST-seeded data; the consumers start only once the lock is
// won, and losing it later stops them again.
func (s *Service) startStreams(ctx, streamCtx context.Context, stopStreams context.CancelFunc) {
	if s.redis == nil {
		s.launchIngestors(streamCtx)
		return
	}

	lock := leader.NewLock(
		s.redis,
		s.cfg.ServiceConfig.LeaderLockKey,
		time.Duration(s.cfg.ServiceConfig.LeaderLockTTLSeconds)*time.Second,
		s.logger,
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := lock.Campaign(streamCtx, 5*time.Second); err != nil {
			return
		}
		s.launchIngestors(streamCtx)
		if err := lock.KeepAlive(streamCtx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("leadership lost, stopping streams")
			stopStreams()
		}
	}()
}

func (s *Service) launchIngestors(streamCtx context.Context) {
	tickerIngestor := stream.NewTickerIngestor(s.tickers, s.logger)
	liqIngestor := stream.NewLiquidationIngestor(s.window, s.logger)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		tickerIngestor.Run(streamCtx)
	}()
	go func() {
		defer s.wg.Done()
		liqIngestor.Run(streamCtx)
	}()
}

func (s *Service) scanLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.ServiceConfig.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Give the ticker stream a moment to populate before the first scan.
	select {
	case <-ctx.Done():
		return
	case <-time.After(10 * time.Second):
	}

	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCycle performs one scan and evaluates every surviving candidate.
func (s *Service) runCycle(ctx context.Context) {
	candidates := s.candidates(ctx)
	if len(candidates) == 0 {
		s.logger.Warn().Msg("no candidates available, skipping cycle")
		return
	}

	results := s.screener.Scan(ctx, candidates)
	if len(results) == 0 {
		return
	}

	peerATRs := make([]float64, 0, len(results))
	for _, r := range results {
		peerATRs = append(peerATRs, r.ATRPercent)
	}

	for _, r := range results {
		if ctx.Err() != nil {
			return
		}
		s.evaluate(ctx, r, peerATRs)
	}
}

// candidates prefers the live ticker stream; when it has nothing yet (non
// leader instance, or a fresh start) the REST 24h stats seed the state.
func (s *Service) candidates(ctx context.Context) []string {
	if s.tickers.Len() == 0 {
		stats, err := s.markets.Get24hTickers(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("24h ticker seed failed")
			return nil
		}
		for _, t := range stats {
			s.tickers.Set(t.Symbol, stream.TickerEntry{
				LastPrice:          t.LastPrice,
				QuoteVolume:        t.QuoteVolume,
				PriceChangePercent: t.PriceChangePercent,
				UpdatedAt:          time.Now(),
			})
		}
	}

	excluded := make(map[string]bool, len(s.cfg.ScreenerConfig.ExcludedSymbols))
	for _, sym := range s.cfg.ScreenerConfig.ExcludedSymbols {
		excluded[sym] = true
	}
	all := s.tickers.Symbols()
	candidates := make([]string, 0, len(all))
	for _, sym := range all {
		if !strings.HasSuffix(sym, "USDT") || excluded[sym] {
			continue
		}
		candidates = append(candidates, sym)
	}
	return candidates
}

// evaluate runs the full pipeline for one screener result: risk profile,
// feature bundle, oracles, decision synthesis and optional execution.
func (s *Service) evaluate(ctx context.Context, r screener.Result, peerATRs []float64) {
	profile := s.profiler.Classify(ctx, r.Symbol, s.cfg.RegimeConfig.Timeframes, peerATRs)
	features := decision.NewFeatureBundle(r, profile)

	logic, err := s.logic.Evaluate(ctx, features, "")
	if err != nil {
		s.logger.Warn().Str("symbol", r.Symbol).Err(err).Msg("logic oracle failed")
		logic = &decision.LogicVerdict{Direction: decision.DirectionWait, RejectionReason: "logic oracle unavailable"}
	}

	vision := decision.NeutralVision()
	if s.vision != nil {
		if v, err := s.vision.Assess(ctx, nil); err == nil {
			vision = v
		} else {
			s.logger.Warn().Str("symbol", r.Symbol).Err(err).Msg("vision oracle failed, using neutral")
		}
	}

	ml, err := s.predictor.Predict(ctx, features)
	if err != nil {
		s.logger.Warn().Str("symbol", r.Symbol).Err(err).Msg("predictor failed, using untrained default")
		ml = nil
	}

	pump := s.pumpMetadata(ctx, r)
	d := s.engine.Combine(logic, vision, r.Whale, ml, pump)
	d.Symbol = r.Symbol

	evt := s.logger.Info().
		Str("symbol", r.Symbol).
		Float64("score", r.Score).
		Str("regime", string(profile.Regime)).
		Str("signal", string(d.FinalSignal)).
		Int("confidence", d.CombinedConfidence).
		Str("recommendation", string(d.Recommendation))
	if d.VetoReason != "" {
		evt = evt.Str("veto", d.VetoReason)
	}
	evt.Msg("evaluation complete")

	if d.Recommendation == decision.RecommendExecute {
		s.execute(ctx, r, profile, logic, d)
	}
}

// pumpMetadata measures the short-window move on the confirmation
// timeframe. Failures degrade to empty metadata, which simply forgoes the
// fast-track boost.
func (s *Service) pumpMetadata(ctx context.Context, r screener.Result) *decision.PumpMetadata {
	var klines []binance.Kline
	key := fmt.Sprintf("klines:%s:5m:%d", r.Symbol, 4)
	err := s.fetcher.Call(ctx, key, 30*time.Second, &klines, func(ctx context.Context) (interface{}, error) {
		return s.markets.GetKlines(ctx, r.Symbol, "5m", 4)
	})
	if err != nil || len(klines) < 4 {
		return &decision.PumpMetadata{}
	}

	first := klines[0].Close
	last := klines[len(klines)-1].Close
	if first <= 0 {
		return &decision.PumpMetadata{}
	}
	pm := &decision.PumpMetadata{
		PriceChangePct: (last - first) / first * 100,
		VolumeMultiple: r.VolumeRatio,
	}
	pm.PumpCandidate = pm.PriceChangePct >= 5 && pm.VolumeMultiple >= 3
	if r.Whale != nil && r.Whale.Kind == whale.SignalDumpImminent {
		pm.DumpRisk = r.Whale.Confidence
	}
	return pm
}

// execute sizes the order from the risk profile and hands it to the
// execution collaborator. DRY RUN and disabled-trading builds never reach
// here because the executor is nil-checked first.
func (s *Service) execute(ctx context.Context, r screener.Result, profile *regime.RiskProfile, logic *decision.LogicVerdict, d *decision.Decision) {
	if s.executor == nil {
		s.logger.Info().Str("symbol", r.Symbol).Msg("execution skipped, trading disabled or dry run")
		return
	}
	if logic.Params == nil {
		s.logger.Error().Str("symbol", r.Symbol).Msg("execute decision without trade params")
		return
	}

	req := binance.OrderRequest{
		Symbol:      r.Symbol,
		Direction:   string(d.FinalSignal),
		NotionalUsd: profile.MaxPositionUsd,
		Leverage:    s.cfg.TradingConfig.Leverage,
		StopPrice:   logic.Params.StopLoss,
		TargetPrice: logic.Params.TakeProfit,
		OrderType:   string(profile.EntryType),
	}
	if profile.EntryType == regime.EntryLimit {
		req.LimitPrice = logic.Params.Entry
	}

	fill, err := s.executor.PlaceOrder(ctx, req)
	if err != nil {
		s.logger.Error().Str("symbol", r.Symbol).Err(err).Msg("order placement failed")
		return
	}
	s.logger.Info().
		Str("symbol", fill.Symbol).
		Int64("order_id", fill.OrderID).
		Float64("price", fill.Price).
		Float64("quantity", fill.Quantity).
		Msg("order placed")
}
