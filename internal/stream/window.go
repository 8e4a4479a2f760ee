package stream

import (
	"sync"
	"time"
)

// PositionSide identifies which position type was force-closed.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// LiquidationEvent is a single forced liquidation observed on the stream.
type LiquidationEvent struct {
	Symbol      string
	Side        PositionSide
	NotionalUsd float64
	Price       float64
	ObservedAt  time.Time
}

// Pressure summarizes one symbol's liquidation window.
type Pressure struct {
	LongNotional  float64 // notional of liquidated LONG positions
	ShortNotional float64 // notional of liquidated SHORT positions
}

// Total returns combined liquidated notional.
func (p Pressure) Total() float64 {
	return p.LongNotional + p.ShortNotional
}

// LiquidationWindow is a per-symbol bounded time window of liquidation
// events. Staleness is a read-time filter: events older than the window
// never contribute to pressure calculations, regardless of insertion order.
// Appends compact the slice in place to keep memory bounded; no timer ever
// evicts.
type LiquidationWindow struct {
	mu     sync.RWMutex
	events map[string][]LiquidationEvent
	window time.Duration
	now    func() time.Time
}

// NewLiquidationWindow creates a window of the given span (typically 5m).
func NewLiquidationWindow(window time.Duration) *LiquidationWindow {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &LiquidationWindow{
		events: make(map[string][]LiquidationEvent),
		window: window,
		now:    time.Now,
	}
}

// Add appends an event in arrival order and drops entries that have already
// aged out of the window.
func (lw *LiquidationWindow) Add(event LiquidationEvent) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	cutoff := lw.now().Add(-lw.window)
	kept := lw.events[event.Symbol][:0]
	for _, ev := range lw.events[event.Symbol] {
		if ev.ObservedAt.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	lw.events[event.Symbol] = append(kept, event)
}

// Pressure sums liquidated notional per side for events still inside the
// window.
func (lw *LiquidationWindow) Pressure(symbol string) Pressure {
	lw.mu.RLock()
	defer lw.mu.RUnlock()

	var p Pressure
	cutoff := lw.now().Add(-lw.window)
	for _, ev := range lw.events[symbol] {
		if !ev.ObservedAt.After(cutoff) {
			continue
		}
		switch ev.Side {
		case SideLong:
			p.LongNotional += ev.NotionalUsd
		case SideShort:
			p.ShortNotional += ev.NotionalUsd
		}
	}
	return p
}

// Events returns the in-window events for a symbol in arrival order.
func (lw *LiquidationWindow) Events(symbol string) []LiquidationEvent {
	lw.mu.RLock()
	defer lw.mu.RUnlock()

	cutoff := lw.now().Add(-lw.window)
	var out []LiquidationEvent
	for _, ev := range lw.events[symbol] {
		if ev.ObservedAt.After(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}
