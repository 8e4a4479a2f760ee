package decision

import (
	"context"
	"fmt"
)

// RuleBasedLogic is the built-in LogicOracle: a deterministic read of the
// feature bundle used when no external oracle endpoint is configured. Trade
// levels come from the risk profile's ATR multipliers, so regime and
// volatility shape the stop and target.
type RuleBasedLogic struct{}

// NewRuleBasedLogic creates the built-in logic oracle.
func NewRuleBasedLogic() *RuleBasedLogic {
	return &RuleBasedLogic{}
}

// Evaluate derives a directional verdict. The learning context is accepted
// for interface compatibility and ignored.
func (o *RuleBasedLogic) Evaluate(_ context.Context, fb *FeatureBundle, _ string) (*LogicVerdict, error) {
	if fb == nil || fb.Price <= 0 {
		return &LogicVerdict{Direction: DirectionWait, Reasoning: "no features"}, nil
	}

	direction, confidence, reasoning := o.direction(fb)
	if direction == DirectionWait {
		return &LogicVerdict{Direction: DirectionWait, Confidence: confidence, Reasoning: reasoning}, nil
	}

	slMult, tpMult := fb.SLMultiplier, fb.TPMultiplier
	if slMult <= 0 || tpMult <= slMult {
		slMult, tpMult = 2.0, 3.5
	}
	atr := fb.ATRPercent / 100 * fb.Price
	v := &LogicVerdict{
		Direction:  direction,
		Confidence: confidence,
		Reasoning:  reasoning,
		Params:     &TradeParams{Entry: fb.Price},
	}
	if direction == DirectionLong {
		v.Params.StopLoss = fb.Price - atr*slMult
		v.Params.TakeProfit = fb.Price + atr*tpMult
	} else {
		v.Params.StopLoss = fb.Price + atr*slMult
		v.Params.TakeProfit = fb.Price - atr*tpMult
	}
	return v, nil
}

func (o *RuleBasedLogic) direction(fb *FeatureBundle) (Direction, int, string) {
	// A confident whale call dominates.
	if fb.WhaleConfidence >= 60 {
		switch fb.WhaleKind {
		case "PUMP_IMMINENT":
			return DirectionLong, whaleConfidence(fb), fmt.Sprintf("whale pump signal at %d%%", fb.WhaleConfidence)
		case "DUMP_IMMINENT":
			return DirectionShort, whaleConfidence(fb), fmt.Sprintf("whale dump signal at %d%%", fb.WhaleConfidence)
		}
	}

	// Otherwise trade efficient moves in the higher-timeframe direction,
	// skipping exhausted momentum.
	if fb.EfficiencyRatio < 0.5 || fb.ADX < 20 {
		return DirectionWait, 0, "no directional edge"
	}
	switch fb.TrendBias {
	case "BULLISH":
		if fb.RSI >= 75 {
			return DirectionWait, 0, "uptrend but momentum exhausted"
		}
		return DirectionLong, trendConfidence(fb), "efficient move with bullish higher-timeframe trend"
	case "BEARISH":
		if fb.RSI <= 25 {
			return DirectionWait, 0, "downtrend but momentum exhausted"
		}
		return DirectionShort, trendConfidence(fb), "efficient move with bearish higher-timeframe trend"
	default:
		return DirectionWait, 0, "no higher-timeframe bias"
	}
}

func whaleConfidence(fb *FeatureBundle) int {
	confidence := fb.WhaleConfidence
	if fb.VolumeZScore > 2 {
		confidence += 5
	}
	return clampConfidence(confidence)
}

func trendConfidence(fb *FeatureBundle) int {
	confidence := 55
	if fb.EfficiencyRatio > 0.7 {
		confidence += 15
	}
	if fb.ADX > 30 {
		confidence += 10
	}
	if fb.Regime == "TRENDING" {
		confidence += 10
	}
	if fb.VolumeZScore > 2 {
		confidence += 5
	}
	return clampConfidence(confidence)
}
