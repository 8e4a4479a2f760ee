package binance

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
)

func TestAggTradeFromRaw(t *testing.T) {
	raw := &futures.AggTrade{
		Price:        "100.5",
		Quantity:     "2",
		IsBuyerMaker: true,
		Timestamp:    1700000000000,
	}
	got := aggTradeFromRaw(raw)
	if got.Price != 100.5 || got.Qty != 2 {
		t.Errorf("parsed price/qty = %v/%v, want 100.5/2", got.Price, got.Qty)
	}
	if !got.IsBuyerMaker {
		t.Error("buyer-maker flag lost in conversion")
	}
	if got.IsTakerBuy() {
		t.Error("a buyer-maker print is a taker sell")
	}
	if got.Time != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", got.Time)
	}

	raw.IsBuyerMaker = false
	if !aggTradeFromRaw(raw).IsTakerBuy() {
		t.Error("a seller-maker print is a taker buy")
	}
}

func TestProtectiveOrderWireTypes(t *testing.T) {
	if orderTypeStopMarket != "STOP_MARKET" {
		t.Errorf("stop order type = %q, want STOP_MARKET", orderTypeStopMarket)
	}
	if orderTypeTakeProfitMarket != "TAKE_PROFIT_MARKET" {
		t.Errorf("take profit order type = %q, want TAKE_PROFIT_MARKET", orderTypeTakeProfitMarket)
	}
}
