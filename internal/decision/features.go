package decision

import (
	"context"

	"market-sentry/internal/regime"
	"market-sentry/internal/screener"
	"market-sentry/internal/whale"
)

// FeatureBundle is the flattened technical snapshot handed to the oracles.
// One bundle per (symbol, evaluation), assembled from the screener result,
// the risk profile and the whale signal.
type FeatureBundle struct {
	Symbol          string  `json:"symbol"`
	Price           float64 `json:"price"`
	RSI             float64 `json:"rsi"`
	ADX             float64 `json:"adx"`
	ATRPercent      float64 `json:"atr_percent"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
	VolumeRatio     float64 `json:"volume_ratio"`
	VolumeZScore    float64 `json:"volume_z_score"`
	Squeeze         bool    `json:"squeeze"`
	TrendBias       string  `json:"trend_bias"`
	ScreenerScore   float64 `json:"screener_score"`

	Regime               string  `json:"regime"`
	RegimeConfidence     int     `json:"regime_confidence"`
	VolatilityClass      string  `json:"volatility_class"`
	VolatilityPercentile int     `json:"volatility_percentile"`
	SLMultiplier         float64 `json:"sl_multiplier"`
	TPMultiplier         float64 `json:"tp_multiplier"`

	WhaleKind       string  `json:"whale_kind"`
	WhaleConfidence int     `json:"whale_confidence"`
	OrderImbalance  float64 `json:"order_imbalance"`
	FundingRate     float64 `json:"funding_rate"`
	LongShortRatio  float64 `json:"long_short_ratio"`
}

// NewFeatureBundle flattens the evaluation inputs. The whale signal may be
// nil when the screener never escalated the symbol.
func NewFeatureBundle(r screener.Result, profile *regime.RiskProfile) *FeatureBundle {
	fb := &FeatureBundle{
		Symbol:          r.Symbol,
		Price:           r.Price,
		RSI:             r.RSI,
		ADX:             r.ADX,
		ATRPercent:      r.ATRPercent,
		EfficiencyRatio: r.EfficiencyRatio,
		VolumeRatio:     r.VolumeRatio,
		VolumeZScore:    r.VolumeZScore,
		Squeeze:         r.Squeeze,
		TrendBias:       string(r.TrendBias),
		ScreenerScore:   r.Score,
		WhaleKind:       string(whale.SignalNeutral),
	}
	if profile != nil {
		fb.Regime = string(profile.Regime)
		fb.RegimeConfidence = profile.RegimeConfidence
		fb.VolatilityClass = string(profile.VolatilityClass)
		fb.VolatilityPercentile = profile.VolatilityPercentile
		fb.SLMultiplier = profile.SLMultiplier
		fb.TPMultiplier = profile.TPMultiplier
	}
	if r.Whale != nil {
		fb.WhaleKind = string(r.Whale.Kind)
		fb.WhaleConfidence = r.Whale.Confidence
		fb.OrderImbalance = r.Whale.OrderImbalance
		fb.FundingRate = r.Whale.FundingRate
		fb.LongShortRatio = r.Whale.LongShortRatio
	}
	return fb
}

// LogicOracle produces a directional verdict from the feature bundle plus
// optional natural-language learning context.
type LogicOracle interface {
	Evaluate(ctx context.Context, features *FeatureBundle, learningContext string) (*LogicVerdict, error)
}

// VisionOracle assesses a rendered chart image.
type VisionOracle interface {
	Assess(ctx context.Context, chart []byte) (*VisionVerdict, error)
}

// WinPredictor estimates the win probability for the feature bundle.
type WinPredictor interface {
	Predict(ctx context.Context, features *FeatureBundle) (*MLPrediction, error)
}
