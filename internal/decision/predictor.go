package decision

import "context"

// RuleBasedPredictor is the fallback WinPredictor used until a trained
// model is wired in. It reports Trained=false, so its numbers are
// informational only: they never veto a decision and never earn the
// ML-boost agreement or confidence bonus.
type RuleBasedPredictor struct{}

// NewRuleBasedPredictor creates the fallback predictor.
func NewRuleBasedPredictor() *RuleBasedPredictor {
	return &RuleBasedPredictor{}
}

// Predict derives a rough win probability from the feature bundle.
func (p *RuleBasedPredictor) Predict(_ context.Context, features *FeatureBundle) (*MLPrediction, error) {
	prob := 0.5
	if features != nil {
		if features.Regime == "TRENDING" && features.TrendBias != "NEUTRAL" {
			prob += 0.05
		}
		if features.EfficiencyRatio > 0.5 {
			prob += 0.05
		}
		if features.VolumeZScore > 2 {
			prob += 0.05
		}
		if features.RSI > 80 || features.RSI < 20 {
			prob -= 0.05
		}
		if features.Regime == "UNKNOWN" {
			prob -= 0.1
		}
	}
	if prob < 0.2 {
		prob = 0.2
	}
	if prob > 0.8 {
		prob = 0.8
	}
	return &MLPrediction{WinProbability: prob, RecommendedThreshold: 0, Trained: false}, nil
}
