package decision

import (
	"fmt"

	"github.com/rs/zerolog"

	"market-sentry/internal/whale"
)

// Engine runs the ordered veto chain. Each stage can short-circuit to SKIP;
// later stages never run once a veto fires.
type Engine struct {
	staticThreshold int
	logger          zerolog.Logger
}

// NewEngine creates a decision engine. staticThreshold is the acceptance
// threshold used when no trained model recommends one.
func NewEngine(staticThreshold int, logger zerolog.Logger) *Engine {
	return &Engine{
		staticThreshold: staticThreshold,
		logger:          logger.With().Str("component", "decision").Logger(),
	}
}

// Combine synthesizes one decision. Nil inputs degrade to their safe
// defaults: neutral vision, untrained prediction, no pump metadata, neutral
// whale signal. The logic verdict is re-validated so a malformed oracle
// response can never slip through to EXECUTE.
func (e *Engine) Combine(logic *LogicVerdict, vision *VisionVerdict, whaleSig *whale.Signal, ml *MLPrediction, pump *PumpMetadata) *Decision {
	logic = ValidateLogicVerdict(logic)
	if vision == nil {
		vision = NeutralVision()
	}
	if ml == nil {
		ml = &MLPrediction{WinProbability: 0.5}
	}
	if pump == nil {
		pump = &PumpMetadata{}
	}

	if logic.Direction == DirectionWait {
		reason := logic.RejectionReason
		if reason == "" {
			reason = "logic verdict is WAIT"
		}
		return e.skip(reason)
	}

	// Stage 1: never trade into a liquidation cascade.
	if whaleSig != nil {
		if (whaleSig.Kind == whale.SignalSqueezeLongs && logic.Direction == DirectionLong) ||
			(whaleSig.Kind == whale.SignalSqueezeShorts && logic.Direction == DirectionShort) {
			return e.skip(fmt.Sprintf("whale %s squeeze against %s entry", whaleSig.Kind, logic.Direction))
		}
	}

	// Stage 2: the chart must show a structurally valid setup.
	if vision.Setup != SetupValid {
		return e.skip(fmt.Sprintf("vision setup %s", vision.Setup))
	}

	// Stage 3: a trained model predicting a likely loss vetoes unless the
	// logic conviction is overwhelming.
	if ml.Trained && ml.WinProbability < 0.3 && logic.Confidence < 85 {
		return e.skip(fmt.Sprintf("model win probability %.2f too low", ml.WinProbability))
	}

	// Stage 4: agreement. Conflicting directions are a hard reject.
	agreement := e.agree(logic, vision, ml)

	// Stage 5: confidence synthesis.
	confidence := logic.Confidence
	if vision.Stance != VisionNeutral {
		confidence = (logic.Confidence + vision.Confidence) / 2
	}
	if ml.Trained && ml.WinProbability > 0.65 {
		confidence += int((ml.WinProbability - 0.5) * 20)
	}
	if confidence > 100 {
		confidence = 100
	}

	// Stage 6: pump fast-track.
	thresholdReduction := 0
	if agreement {
		switch {
		case pump.extreme() && pump.DumpRisk < 50:
			confidence += 15
			if confidence > 100 {
				confidence = 100
			}
			thresholdReduction = 20
		case pump.PumpCandidate:
			thresholdReduction = 15
		}
	}

	// Stage 7: final gate.
	threshold := e.staticThreshold
	if ml.Trained && ml.RecommendedThreshold > 0 {
		threshold = ml.RecommendedThreshold
	}
	threshold -= thresholdReduction
	if threshold < 50 {
		threshold = 50
	}

	d := &Decision{
		FinalSignal:        DirectionWait,
		CombinedConfidence: confidence,
		Agreement:          agreement,
		Recommendation:     RecommendSkip,
		ThresholdUsed:      threshold,
	}
	switch {
	case !agreement:
		d.VetoReason = fmt.Sprintf("no agreement: logic %s/%d vs vision %s/%d",
			logic.Direction, logic.Confidence, vision.Stance, vision.Confidence)
	case confidence < threshold:
		d.VetoReason = fmt.Sprintf("confidence %d below threshold %d", confidence, threshold)
		d.FinalSignal = logic.Direction
	default:
		d.FinalSignal = logic.Direction
		d.Recommendation = RecommendExecute
	}

	e.logger.Debug().
		Str("direction", string(d.FinalSignal)).
		Int("confidence", d.CombinedConfidence).
		Int("threshold", d.ThresholdUsed).
		Bool("agreement", d.Agreement).
		Str("recommendation", string(d.Recommendation)).
		Msg("decision synthesized")
	return d
}

// agree determines whether the verdicts line up. Direction match is perfect
// agreement; a neutral chart defers to a confident logic verdict; a trained
// model with a strong win probability can carry a moderately confident one.
func (e *Engine) agree(logic *LogicVerdict, vision *VisionVerdict, ml *MLPrediction) bool {
	directionsMatch := (logic.Direction == DirectionLong && vision.Stance == VisionBullish) ||
		(logic.Direction == DirectionShort && vision.Stance == VisionBearish)
	switch {
	case directionsMatch:
		return true
	case vision.Stance == VisionNeutral && logic.Confidence > 75:
		return true
	case ml.Trained && ml.WinProbability > 0.7 && logic.Confidence > 65:
		return true
	default:
		return false
	}
}

func (e *Engine) skip(reason string) *Decision {
	e.logger.Debug().Str("reason", reason).Msg("decision vetoed")
	return &Decision{
		FinalSignal:    DirectionWait,
		Recommendation: RecommendSkip,
		VetoReason:     reason,
	}
}
