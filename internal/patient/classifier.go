package patient

import (
	"context"
	"errors"
)

// ErrNoClassifier is returned by DetermineRisk and DetermineStability when no
// classifier has been configured.
var ErrNoClassifier = errors.New("no classifier configured")

// RiskAssessment is the outcome of a RiskClassifier.
type RiskAssessment struct {
	Level  string `json:"level"`
	Reason string `json:"reason,omitempty"`
}

// RiskClassifier assigns a risk level from a patient's summary statistics.
type RiskClassifier interface {
	ClassifyRisk(ctx context.Context, s Summary) (RiskAssessment, error)
}

// StabilityAssessment is the outcome of a StabilityClassifier.
type StabilityAssessment struct {
	Stable bool   `json:"stable"`
	Reason string `json:"reason,omitempty"`
}

// StabilityClassifier judges whether a patient's scores have settled.
type StabilityClassifier interface {
	ClassifyStability(ctx context.Context, h History, s Summary) (StabilityAssessment, error)
}

// RiskClassifierFunc adapts a function to RiskClassifier.
type RiskClassifierFunc func(ctx context.Context, s Summary) (RiskAssessment, error)

// ClassifyRisk calls f.
func (f RiskClassifierFunc) ClassifyRisk(ctx context.Context, s Summary) (RiskAssessment, error) {
	return f(ctx, s)
}

// StabilityClassifierFunc adapts a function to StabilityClassifier.
type StabilityClassifierFunc func(ctx context.Context, h History, s Summary) (StabilityAssessment, error)

// ClassifyStability calls f.
func (f StabilityClassifierFunc) ClassifyStability(ctx context.Context, h History, s Summary) (StabilityAssessment, error) {
	return f(ctx, h, s)
}
