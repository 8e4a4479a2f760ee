package stream

import (
	"testing"
	"time"
)

func TestLiquidationWindowExcludesStaleEvents(t *testing.T) {
	now := time.Now()
	lw := NewLiquidationWindow(5 * time.Minute)
	lw.now = func() time.Time { return now }

	// Insert out of chronological order; staleness must not depend on it.
	lw.Add(LiquidationEvent{Symbol: "BTCUSDT", Side: SideLong, NotionalUsd: 10_000, ObservedAt: now.Add(-1 * time.Minute)})
	lw.Add(LiquidationEvent{Symbol: "BTCUSDT", Side: SideLong, NotionalUsd: 99_000, ObservedAt: now.Add(-10 * time.Minute)})
	lw.Add(LiquidationEvent{Symbol: "BTCUSDT", Side: SideShort, NotionalUsd: 20_000, ObservedAt: now.Add(-3 * time.Minute)})

	p := lw.Pressure("BTCUSDT")
	if p.LongNotional != 10_000 {
		t.Errorf("expected long notional 10000 (stale event excluded), got %v", p.LongNotional)
	}
	if p.ShortNotional != 20_000 {
		t.Errorf("expected short notional 20000, got %v", p.ShortNotional)
	}
	if total := p.Total(); total != 30_000 {
		t.Errorf("expected total 30000, got %v", total)
	}
}

func TestLiquidationWindowAgesOutOverTime(t *testing.T) {
	now := time.Now()
	lw := NewLiquidationWindow(5 * time.Minute)
	lw.now = func() time.Time { return now }

	lw.Add(LiquidationEvent{Symbol: "ETHUSDT", Side: SideShort, NotionalUsd: 50_000, ObservedAt: now})
	if p := lw.Pressure("ETHUSDT"); p.ShortNotional != 50_000 {
		t.Fatalf("expected fresh event counted, got %v", p.ShortNotional)
	}

	now = now.Add(6 * time.Minute)
	if p := lw.Pressure("ETHUSDT"); p.Total() != 0 {
		t.Errorf("expected aged-out event excluded, got total %v", p.Total())
	}
	if events := lw.Events("ETHUSDT"); len(events) != 0 {
		t.Errorf("expected no in-window events, got %d", len(events))
	}
}

func TestLiquidationWindowPerSymbolIsolation(t *testing.T) {
	lw := NewLiquidationWindow(5 * time.Minute)
	lw.Add(LiquidationEvent{Symbol: "BTCUSDT", Side: SideLong, NotionalUsd: 10_000, ObservedAt: time.Now()})

	if p := lw.Pressure("ETHUSDT"); p.Total() != 0 {
		t.Errorf("expected empty pressure for untouched symbol, got %v", p.Total())
	}
}

func TestLiquidationWindowPreservesArrivalOrder(t *testing.T) {
	now := time.Now()
	lw := NewLiquidationWindow(5 * time.Minute)
	lw.now = func() time.Time { return now }

	notionals := []float64{1000, 2000, 3000}
	for _, n := range notionals {
		lw.Add(LiquidationEvent{Symbol: "SOLUSDT", Side: SideLong, NotionalUsd: n, ObservedAt: now})
	}

	events := lw.Events("SOLUSDT")
	if len(events) != len(notionals) {
		t.Fatalf("expected %d events, got %d", len(notionals), len(events))
	}
	for i, ev := range events {
		if ev.NotionalUsd != notionals[i] {
			t.Errorf("event %d out of arrival order: got %v", i, ev.NotionalUsd)
		}
	}
}
