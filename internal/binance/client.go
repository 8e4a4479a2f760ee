package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
)

// MarketDataProvider is the narrow read-only interface the analysis layers
// consume. The exchange itself is an external collaborator; everything above
// this interface is exchange-agnostic.
type MarketDataProvider interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetOrderBook(ctx context.Context, symbol string, limit int) (*OrderBookDepth, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]AggTrade, error)
	GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error)
	GetLongShortRatio(ctx context.Context, symbol string) (*LongShortRatio, error)
	Get24hTickers(ctx context.Context) ([]Ticker24h, error)
}

// Client wraps the Binance futures REST API. Every call carries an explicit
// timeout so a slow upstream can never stall a caller indefinitely.
type Client struct {
	api         *futures.Client
	callTimeout time.Duration
	logger      zerolog.Logger
}

// NewClient creates a futures REST client. An empty key/secret pair is fine
// for the public market-data endpoints. testnet switches every client in the
// process to the futures testnet endpoints.
func NewClient(apiKey, secretKey string, testnet bool, logger zerolog.Logger) *Client {
	futures.UseTestnet = testnet
	return &Client{
		api:         futures.NewClient(apiKey, secretKey),
		callTimeout: 5 * time.Second,
		logger:      logger.With().Str("component", "binance").Logger(),
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// GetKlines fetches OHLCV candles for a symbol and interval.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, k := range raw {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		klines = append(klines, Kline{
			OpenTime:  k.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: k.CloseTime,
		})
	}
	return klines, nil
}

// GetOrderBook fetches a depth snapshot limited to the top N levels per side.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (*OrderBookDepth, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.api.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("depth %s: %w", symbol, err)
	}

	book := &OrderBookDepth{
		Bids:       make([]BookLevel, 0, len(raw.Bids)),
		Asks:       make([]BookLevel, 0, len(raw.Asks)),
		CapturedAt: time.Now(),
	}
	for _, b := range raw.Bids {
		price, _ := strconv.ParseFloat(b.Price, 64)
		qty, _ := strconv.ParseFloat(b.Quantity, 64)
		book.Bids = append(book.Bids, BookLevel{Price: price, Qty: qty})
	}
	for _, a := range raw.Asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		qty, _ := strconv.ParseFloat(a.Quantity, 64)
		book.Asks = append(book.Asks, BookLevel{Price: price, Qty: qty})
	}
	return book, nil
}

// GetRecentTrades fetches the most recent aggregated trades.
func (c *Client) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]AggTrade, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.api.NewAggTradesService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("agg trades %s: %w", symbol, err)
	}

	trades := make([]AggTrade, 0, len(raw))
	for _, t := range raw {
		trades = append(trades, aggTradeFromRaw(t))
	}
	return trades, nil
}

func aggTradeFromRaw(t *futures.AggTrade) AggTrade {
	price, _ := strconv.ParseFloat(t.Price, 64)
	qty, _ := strconv.ParseFloat(t.Quantity, 64)
	return AggTrade{
		Price:        price,
		Qty:          qty,
		IsBuyerMaker: t.IsBuyerMaker,
		Time:         t.Timestamp,
	}
}

// GetFundingRate fetches the current funding rate from the premium index.
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.api.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("premium index %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("premium index %s: empty response", symbol)
	}

	rate, _ := strconv.ParseFloat(raw[0].LastFundingRate, 64)
	mark, _ := strconv.ParseFloat(raw[0].MarkPrice, 64)
	return &FundingRate{
		Symbol:          symbol,
		Rate:            rate,
		MarkPrice:       mark,
		NextFundingTime: raw[0].NextFundingTime,
	}, nil
}

// GetLongShortRatio fetches the latest 5m account long/short ratio.
func (c *Client) GetLongShortRatio(ctx context.Context, symbol string) (*LongShortRatio, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.api.NewLongShortRatioService().
		Symbol(symbol).
		Period("5m").
		Limit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("long/short ratio %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("long/short ratio %s: empty response", symbol)
	}

	ratio, _ := strconv.ParseFloat(raw[0].LongShortRatio, 64)
	long, _ := strconv.ParseFloat(raw[0].LongAccount, 64)
	short, _ := strconv.ParseFloat(raw[0].ShortAccount, 64)
	return &LongShortRatio{
		Symbol:       symbol,
		Ratio:        ratio,
		LongAccount:  long,
		ShortAccount: short,
	}, nil
}

// Get24hTickers fetches 24h rolling statistics for all symbols. Used to seed
// the screener prefilter before the ticker stream has warmed up.
func (c *Client) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	raw, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("24h tickers: %w", err)
	}

	tickers := make([]Ticker24h, 0, len(raw))
	for _, t := range raw {
		last, _ := strconv.ParseFloat(t.LastPrice, 64)
		pct, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		quoteVol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		tickers = append(tickers, Ticker24h{
			Symbol:             t.Symbol,
			LastPrice:          last,
			PriceChangePercent: pct,
			QuoteVolume:        quoteVol,
		})
	}
	return tickers, nil
}
