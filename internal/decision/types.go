// Package decision synthesizes the logic verdict, vision verdict, whale
// signal, ML prediction and pump metadata into a final trade decision under
// a strict ordered veto hierarchy. Conflicts are hard rejects, never
// averaged away, and any failed upstream biases toward SKIP.
package decision

// Direction is the trade direction of a verdict or decision.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionWait  Direction = "WAIT"
)

// TradeParams carries the price levels a directional verdict must provide.
type TradeParams struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// LogicVerdict is the technical-analysis oracle's output. Always passed
// through ValidateLogicVerdict before synthesis.
type LogicVerdict struct {
	Direction  Direction    `json:"direction"`
	Confidence int          `json:"confidence"` // 0-100
	Params     *TradeParams `json:"params,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`
	// RejectionReason is set when validation forced the direction to WAIT.
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// VisionStance is the chart oracle's directional read.
type VisionStance string

const (
	VisionBullish VisionStance = "BULLISH"
	VisionBearish VisionStance = "BEARISH"
	VisionNeutral VisionStance = "NEUTRAL"
)

// SetupQuality is the chart oracle's structural assessment.
type SetupQuality string

const (
	SetupValid             SetupQuality = "VALID_SETUP"
	SetupInvalidChoppy     SetupQuality = "INVALID_CHOPPY"
	SetupDangerousBreakout SetupQuality = "DANGEROUS_BREAKOUT"
)

// VisionVerdict is the chart oracle's output.
type VisionVerdict struct {
	Stance     VisionStance `json:"stance"`
	Confidence int          `json:"confidence"` // 0-100
	Setup      SetupQuality `json:"setup"`
}

// NeutralVision is the safe default used when the chart oracle is
// unavailable or returned a malformed response: no directional opinion and
// no structural objection, so the logic verdict decides on its own merits.
func NeutralVision() *VisionVerdict {
	return &VisionVerdict{Stance: VisionNeutral, Confidence: 0, Setup: SetupValid}
}

// MLPrediction is the win-probability model's output. Trained=false marks
// the rule-based fallback, whose numbers never veto or boost.
type MLPrediction struct {
	WinProbability       float64 `json:"win_probability"`       // 0-1
	RecommendedThreshold int     `json:"recommended_threshold"` // 0-100
	Trained              bool    `json:"trained"`
}

// PumpMetadata describes the candidate's short-window price expansion.
type PumpMetadata struct {
	PriceChangePct float64 `json:"price_change_pct"` // over the last 3 candles
	VolumeMultiple float64 `json:"volume_multiple"`  // vs average volume
	DumpRisk       int     `json:"dump_risk"`        // 0-100
	PumpCandidate  bool    `json:"pump_candidate"`
}

// extreme reports whether the move qualifies for the fast-track boost.
func (pm *PumpMetadata) extreme() bool {
	return pm.PriceChangePct >= 10 && pm.VolumeMultiple >= 5
}

// Recommendation is the final call on a candidate.
type Recommendation string

const (
	RecommendExecute Recommendation = "EXECUTE"
	RecommendSkip    Recommendation = "SKIP"
)

// Decision is the synthesized output. Created fresh per evaluation and
// never mutated after Combine returns it.
type Decision struct {
	Symbol             string         `json:"symbol"`
	FinalSignal        Direction      `json:"final_signal"`
	CombinedConfidence int            `json:"combined_confidence"` // 0-100
	Agreement          bool           `json:"agreement"`
	Recommendation     Recommendation `json:"recommendation"`
	ThresholdUsed      int            `json:"threshold_used"`
	VetoReason         string         `json:"veto_reason,omitempty"`
}
