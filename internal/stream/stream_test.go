package stream

import (
	"context"
	"testing"
	"time"
)

func TestNextDelayGrowth(t *testing.T) {
	d := initialDelay
	d = nextDelay(d)
	if d != 7500*time.Millisecond {
		t.Errorf("first backoff = %v, want 7.5s", d)
	}
	d = nextDelay(d)
	if d != 11250*time.Millisecond {
		t.Errorf("second backoff = %v, want 11.25s", d)
	}
}

func TestNextDelayCap(t *testing.T) {
	if got := nextDelay(50 * time.Second); got != maxDelay {
		t.Errorf("nextDelay(50s) = %v, want the %v cap", got, maxDelay)
	}
	if got := nextDelay(maxDelay); got != maxDelay {
		t.Errorf("nextDelay at the cap = %v, must stay at %v", got, maxDelay)
	}
}

func TestSleepCtxCompletes(t *testing.T) {
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Error("uncancelled sleep must report completion")
	}
}

func TestSleepCtxCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleepCtx(ctx, time.Minute) {
		t.Error("cancelled sleep must report interruption")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled sleep took %v, must return promptly", elapsed)
	}
}
