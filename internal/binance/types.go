package binance

import "time"

// Kline represents a single OHLCV candle. Values are parsed from the
// exchange's string payloads at the client boundary so the rest of the
// system only ever sees floats.
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// BookLevel is a single price level in the order book.
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// Notional returns the USD value resting at this level.
func (l BookLevel) Notional() float64 {
	return l.Price * l.Qty
}

// OrderBookDepth is a point-in-time snapshot of the top of the book.
// Snapshots are replaced wholesale on refresh, never mutated in place.
type OrderBookDepth struct {
	Bids       []BookLevel `json:"bids"`
	Asks       []BookLevel `json:"asks"`
	CapturedAt time.Time   `json:"captured_at"`
}

// AggTrade is an aggregated trade print.
type AggTrade struct {
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
	Time         int64   `json:"time"`
}

// Notional returns the USD value of the trade.
func (t AggTrade) Notional() float64 {
	return t.Price * t.Qty
}

// IsTakerBuy reports whether the aggressor side was a buyer. When the
// buyer is the maker, the taker sold into the bid.
func (t AggTrade) IsTakerBuy() bool {
	return !t.IsBuyerMaker
}

// FundingRate holds the current funding rate for a perpetual symbol.
type FundingRate struct {
	Symbol          string  `json:"symbol"`
	Rate            float64 `json:"rate"`
	MarkPrice       float64 `json:"mark_price"`
	NextFundingTime int64   `json:"next_funding_time"`
}

// LongShortRatio holds the account long/short positioning ratio.
type LongShortRatio struct {
	Symbol       string  `json:"symbol"`
	Ratio        float64 `json:"ratio"`
	LongAccount  float64 `json:"long_account"`
	ShortAccount float64 `json:"short_account"`
}

// Ticker24h is a 24-hour rolling statistics entry for one symbol.
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
}
