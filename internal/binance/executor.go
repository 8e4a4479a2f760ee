package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
)

// Protective close orders are trigger types the futures API groups under
// AlgoOrderType; CreateOrderService still takes them as plain order types.
var (
	orderTypeStopMarket       = futures.OrderType(futures.AlgoOrderTypeStopMarket)
	orderTypeTakeProfitMarket = futures.OrderType(futures.AlgoOrderTypeTakeProfitMarket)
)

// OrderRequest describes an order the decision layer wants placed. The
// executor owns translation into exchange semantics; the exchange rejects
// sub-minimum notional orders itself.
type OrderRequest struct {
	Symbol      string
	Direction   string // LONG or SHORT
	NotionalUsd float64
	Leverage    int
	LimitPrice  float64 // required for LIMIT orders
	StopPrice   float64 // optional protective stop
	TargetPrice float64 // optional take profit
	OrderType   string  // MARKET or LIMIT
}

// Fill is the result of a successfully placed entry order.
type Fill struct {
	Symbol   string
	OrderID  int64
	Price    float64
	Quantity float64
}

// OrderExecutor is the narrow execution collaborator interface.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error)
}

// Executor places orders on Binance futures. Quantity formatting uses a
// fixed precision; the exchange's lot filters reject anything it dislikes
// and that rejection is surfaced as a structured error.
type Executor struct {
	api       *futures.Client
	markets   MarketDataProvider
	qtyDigits int
	logger    zerolog.Logger
}

// NewExecutor creates an order executor sharing the client's API session.
func NewExecutor(client *Client, qtyDigits int, logger zerolog.Logger) *Executor {
	if qtyDigits <= 0 {
		qtyDigits = 3
	}
	return &Executor{
		api:       client.api,
		markets:   client,
		qtyDigits: qtyDigits,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// PlaceOrder opens a position and attaches the protective stop and target.
// SL/TP placement gets exactly one retry; a second failure is reported to
// the caller so the position is never silently left unprotected.
func (e *Executor) PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if req.NotionalUsd <= 0 {
		return nil, fmt.Errorf("place order %s: non-positive notional", req.Symbol)
	}

	refPrice := req.LimitPrice
	if refPrice <= 0 {
		funding, err := e.markets.GetFundingRate(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("place order %s: mark price unavailable: %w", req.Symbol, err)
		}
		refPrice = funding.MarkPrice
	}
	if refPrice <= 0 {
		return nil, fmt.Errorf("place order %s: no reference price", req.Symbol)
	}

	if req.Leverage > 0 {
		levCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		_, err := e.api.NewChangeLeverageService().
			Symbol(req.Symbol).
			Leverage(req.Leverage).
			Do(levCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("set leverage %s: %w", req.Symbol, err)
		}
	}

	qty := req.NotionalUsd / refPrice
	qtyStr := strconv.FormatFloat(qty, 'f', e.qtyDigits, 64)

	side := futures.SideTypeBuy
	closeSide := futures.SideTypeSell
	if req.Direction == "SHORT" {
		side = futures.SideTypeSell
		closeSide = futures.SideTypeBuy
	}

	svc := e.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Quantity(qtyStr)

	if req.OrderType == "LIMIT" && req.LimitPrice > 0 {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(req.LimitPrice, 'f', -1, 64))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	res, err := svc.Do(callCtx)
	if err != nil {
		return nil, fmt.Errorf("place order %s %s: %w", req.Direction, req.Symbol, err)
	}

	fillPrice, _ := strconv.ParseFloat(res.AvgPrice, 64)
	if fillPrice <= 0 {
		fillPrice = refPrice
	}
	fill := &Fill{
		Symbol:   req.Symbol,
		OrderID:  res.OrderID,
		Price:    fillPrice,
		Quantity: qty,
	}

	e.logger.Info().
		Str("symbol", req.Symbol).
		Str("direction", req.Direction).
		Float64("price", fill.Price).
		Float64("qty", fill.Quantity).
		Msg("entry order placed")

	if req.StopPrice > 0 {
		if err := e.placeClosing(ctx, req.Symbol, closeSide, orderTypeStopMarket, req.StopPrice); err != nil {
			return fill, fmt.Errorf("stop placement %s: %w", req.Symbol, err)
		}
	}
	if req.TargetPrice > 0 {
		if err := e.placeClosing(ctx, req.Symbol, closeSide, orderTypeTakeProfitMarket, req.TargetPrice); err != nil {
			return fill, fmt.Errorf("take profit placement %s: %w", req.Symbol, err)
		}
	}
	return fill, nil
}

// placeClosing places a close-position trigger order with a single retry.
func (e *Executor) placeClosing(ctx context.Context, symbol string, side futures.SideType, orderType futures.OrderType, trigger float64) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		_, err := e.api.NewCreateOrderService().
			Symbol(symbol).
			Side(side).
			Type(orderType).
			StopPrice(strconv.FormatFloat(trigger, 'f', -1, 64)).
			ClosePosition(true).
			Do(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Warn().
			Str("symbol", symbol).
			Str("type", string(orderType)).
			Int("attempt", attempt+1).
			Err(err).
			Msg("protective order rejected")
		time.Sleep(200 * time.Millisecond)
	}
	return lastErr
}
