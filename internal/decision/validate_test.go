package decision

import (
	"strings"
	"testing"
)

func validLong() *LogicVerdict {
	return &LogicVerdict{
		Direction:  DirectionLong,
		Confidence: 70,
		Params:     &TradeParams{Entry: 100, StopLoss: 98, TakeProfit: 106},
	}
}

func TestValidateNilVerdict(t *testing.T) {
	v := ValidateLogicVerdict(nil)
	if v == nil {
		t.Fatal("validation must never return nil")
	}
	if v.Direction != DirectionWait {
		t.Errorf("expected WAIT, got %s", v.Direction)
	}
	if v.RejectionReason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestValidateAcceptsSaneVerdict(t *testing.T) {
	v := ValidateLogicVerdict(validLong())
	if v.Direction != DirectionLong {
		t.Errorf("sane verdict must survive, got %s (%s)", v.Direction, v.RejectionReason)
	}
	if v.RejectionReason != "" {
		t.Errorf("unexpected rejection: %s", v.RejectionReason)
	}
}

func TestValidateWaitPassesThrough(t *testing.T) {
	v := ValidateLogicVerdict(&LogicVerdict{Direction: DirectionWait, Confidence: 40})
	if v.Direction != DirectionWait || v.RejectionReason != "" {
		t.Errorf("WAIT without params is fine, got %s (%s)", v.Direction, v.RejectionReason)
	}
}

func TestValidateClampsConfidence(t *testing.T) {
	v := validLong()
	v.Confidence = 140
	if got := ValidateLogicVerdict(v).Confidence; got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
	v = validLong()
	v.Confidence = -5
	if got := ValidateLogicVerdict(v).Confidence; got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LogicVerdict)
		reason string
	}{
		{"unknown direction", func(v *LogicVerdict) { v.Direction = "HOLD" }, "unknown direction"},
		{"missing params", func(v *LogicVerdict) { v.Params = nil }, "without trade params"},
		{"zero entry", func(v *LogicVerdict) { v.Params.Entry = 0 }, "non-positive"},
		{"negative stop", func(v *LogicVerdict) { v.Params.StopLoss = -98 }, "non-positive"},
		{"stop too tight", func(v *LogicVerdict) {
			// 0.05% away from entry, under the 0.1% floor.
			v.Params.StopLoss = 99.95
		}, "stop distance"},
		{"stop too wide", func(v *LogicVerdict) {
			// 6% away from entry, over the 5% ceiling.
			v.Params.StopLoss = 94
		}, "stop distance"},
		{"reward below risk", func(v *LogicVerdict) {
			// risk 2, reward 1: ratio 0.5.
			v.Params.TakeProfit = 101
		}, "reward:risk"},
		{"reward barely short", func(v *LogicVerdict) {
			// risk 2, reward 2: ratio 1.0 under the 1.1 minimum.
			v.Params.TakeProfit = 102
		}, "reward:risk"},
	}
	for _, tc := range cases {
		v := validLong()
		tc.mutate(v)
		got := ValidateLogicVerdict(v)
		if got.Direction != DirectionWait {
			t.Errorf("%s: expected WAIT, got %s", tc.name, got.Direction)
			continue
		}
		if !strings.Contains(got.RejectionReason, tc.reason) {
			t.Errorf("%s: reason %q does not mention %q", tc.name, got.RejectionReason, tc.reason)
		}
	}
}

func TestValidateBoundaryStops(t *testing.T) {
	// Exactly 0.1% and exactly 5.0% are both inside the band.
	v := validLong()
	v.Params.Entry = 1000
	v.Params.StopLoss = 999
	v.Params.TakeProfit = 1002
	if got := ValidateLogicVerdict(v); got.Direction != DirectionLong {
		t.Errorf("0.1%% stop must pass, rejected with %q", got.RejectionReason)
	}

	v = validLong()
	v.Params.StopLoss = 95
	v.Params.TakeProfit = 110
	if got := ValidateLogicVerdict(v); got.Direction != DirectionLong {
		t.Errorf("5%% stop must pass, rejected with %q", got.RejectionReason)
	}
}
