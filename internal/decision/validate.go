package decision

import "fmt"

const (
	minStopDistancePct = 0.1
	maxStopDistancePct = 5.0
	minRewardRisk      = 1.1
)

// ValidateLogicVerdict sanitizes an oracle verdict in place. Anything that
// fails validation is forced to WAIT with a structured rejection reason;
// the verdict is never dropped, so the decision stays auditable.
func ValidateLogicVerdict(v *LogicVerdict) *LogicVerdict {
	if v == nil {
		return &LogicVerdict{Direction: DirectionWait, RejectionReason: "no verdict returned"}
	}

	v.Confidence = clampConfidence(v.Confidence)

	switch v.Direction {
	case DirectionLong, DirectionShort:
	case DirectionWait:
		return v
	default:
		return rejected(v, fmt.Sprintf("unknown direction %q", v.Direction))
	}

	if v.Params == nil {
		return rejected(v, "directional verdict without trade params")
	}
	p := v.Params
	if p.Entry <= 0 || p.StopLoss <= 0 || p.TakeProfit <= 0 {
		return rejected(v, "non-positive entry, stop or target")
	}

	stopDistPct := absFloat(p.Entry-p.StopLoss) / p.Entry * 100
	if stopDistPct < minStopDistancePct || stopDistPct > maxStopDistancePct {
		return rejected(v, fmt.Sprintf("stop distance %.2f%% outside [%.1f%%, %.1f%%]",
			stopDistPct, minStopDistancePct, maxStopDistancePct))
	}

	risk := absFloat(p.Entry - p.StopLoss)
	reward := absFloat(p.TakeProfit - p.Entry)
	if risk == 0 || reward/risk < minRewardRisk {
		return rejected(v, fmt.Sprintf("reward:risk %.2f below %.1f", safeRatio(reward, risk), minRewardRisk))
	}

	return v
}

func rejected(v *LogicVerdict, reason string) *LogicVerdict {
	v.Direction = DirectionWait
	v.RejectionReason = reason
	return v
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func safeRatio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
