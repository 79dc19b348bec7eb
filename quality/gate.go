package quality

import (
	"errors"
	"fmt"
)

// ErrInvalidMetrics is wrapped by every error Metrics.Validate returns.
var ErrInvalidMetrics = errors.New("invalid metrics")

// Category groups quality checks by what they measure.
type Category string

const (
	CategoryCompleteness Category = "completeness"
	CategoryConsistency  Category = "consistency"
	CategoryEvidence     Category = "evidence"
	CategoryScoring      Category = "scoring"
)

// Status is the outcome of a quality evaluation.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// Check is a single scored quality check attached to an assessment.
type Check struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
	Weight   float64  `json:"weight,omitempty"`
}

// Metrics are the raw figures an assessment accumulates while it is worked on.
type Metrics struct {
	TotalQuestions       int     `json:"total_questions"`
	AnsweredQuestions    int     `json:"answered_questions"`
	EvidenceCount        int     `json:"evidence_count"`
	OpenCriticalFindings int     `json:"open_critical_findings"`
	ConfidenceLevel      float64 `json:"confidence_level"`
	Checks               []Check `json:"checks,omitempty"`
}

// Completion returns answered/total in [0,1], or 0 when the assessment has no questions.
func (m Metrics) Completion() float64 {
	if m.TotalQuestions <= 0 {
		return 0
	}
	return clamp01(float64(m.AnsweredQuestions) / float64(m.TotalQuestions))
}

// Validate rejects figures no real assessment can hold.
func (m Metrics) Validate() error {
	var errs []error
	if m.TotalQuestions < 0 || m.AnsweredQuestions < 0 || m.EvidenceCount < 0 || m.OpenCriticalFindings < 0 {
		errs = append(errs, fmt.Errorf("%w: counts must not be negative", ErrInvalidMetrics))
	}
	if m.AnsweredQuestions > m.TotalQuestions {
		errs = append(errs, fmt.Errorf("%w: %d answered of %d questions", ErrInvalidMetrics, m.AnsweredQuestions, m.TotalQuestions))
	}
	if m.ConfidenceLevel < 0 || m.ConfidenceLevel > 1 {
		errs = append(errs, fmt.Errorf("%w: confidence %v is outside [0,1]", ErrInvalidMetrics, m.ConfidenceLevel))
	}
	for _, c := range m.Checks {
		if c.MaxScore <= 0 || c.Score < 0 || c.Score > c.MaxScore {
			errs = append(errs, fmt.Errorf("%w: check %q scores %v of %v", ErrInvalidMetrics, c.ID, c.Score, c.MaxScore))
		}
		if c.Weight < 0 {
			errs = append(errs, fmt.Errorf("%w: check %q has negative weight", ErrInvalidMetrics, c.ID))
		}
	}
	return errors.Join(errs...)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Thresholds configure the gate. All values are fractions in [0,1].
type Thresholds struct {
	MinimumCompletion   float64 `json:"minimum_completion"`
	MinimumQualityScore float64 `json:"minimum_quality_score"`
	MinimumConfidence   float64 `json:"minimum_confidence"`
	// WarningTolerance is the band below each threshold that yields a warning instead of a failure.
	WarningTolerance float64 `json:"warning_tolerance"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinimumCompletion:   0.8,
		MinimumQualityScore: 0.7,
		MinimumConfidence:   0.6,
		WarningTolerance:    0.05,
	}
}

// CheckResult is a check together with its normalised ratio.
type CheckResult struct {
	Check
	Ratio float64 `json:"ratio"`
}

// Control is the computed quality control record for an assessment.
type Control struct {
	CompletionPercentage float64       `json:"completion_percentage"`
	OverallScore         float64       `json:"overall_score"`
	ConfidenceLevel      float64       `json:"confidence_level"`
	Status               Status        `json:"status"`
	Checks               []CheckResult `json:"checks"`
	Issues               []string      `json:"issues,omitempty"`
}

// Passed reports whether the gate let the assessment through without reservations.
func (c Control) Passed() bool { return c.Status == StatusPassed }

// Failed reports whether a hard threshold was missed.
func (c Control) Failed() bool { return c.Status == StatusFailed }

// Evaluate computes the quality control for metrics against thresholds.
// It is deterministic and performs no I/O.
func Evaluate(metrics Metrics, thresholds Thresholds) Control {
	control := Control{
		CompletionPercentage: metrics.Completion(),
		ConfidenceLevel:      clamp01(metrics.ConfidenceLevel),
		Checks:               make([]CheckResult, 0, len(metrics.Checks)),
	}

	var weighted, totalWeight float64
	for _, check := range metrics.Checks {
		if check.MaxScore <= 0 {
			continue
		}
		weight := check.Weight
		if weight <= 0 {
			weight = 1
		}
		ratio := clamp01(check.Score / check.MaxScore)
		control.Checks = append(control.Checks, CheckResult{Check: check, Ratio: ratio})
		weighted += ratio * weight
		totalWeight += weight
	}
	if totalWeight > 0 {
		control.OverallScore = weighted / totalWeight
	}

	control.Status = StatusPassed
	measures := []struct {
		name      string
		value     float64
		threshold float64
	}{
		{"completion", control.CompletionPercentage, thresholds.MinimumCompletion},
		{"quality score", control.OverallScore, thresholds.MinimumQualityScore},
		{"confidence", control.ConfidenceLevel, thresholds.MinimumConfidence},
	}
	for _, m := range measures {
		if m.value >= m.threshold {
			continue
		}
		control.Issues = append(control.Issues,
			fmt.Sprintf("%s %.2f below minimum %.2f", m.name, m.value, m.threshold))
		if m.value >= m.threshold-thresholds.WarningTolerance {
			if control.Status == StatusPassed {
				control.Status = StatusWarning
			}
			continue
		}
		control.Status = StatusFailed
	}

	return control
}
