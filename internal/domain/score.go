package domain

// ScoreResult is the outcome of one scoring provider. A provider either
// produced a usable probability or declared itself unavailable; the
// substitution of a fallback value is an explicit decision made by the
// scoring engine, never hidden inside a provider.
type ScoreResult struct {
	// Score is the probability in [0,1]. Meaningless when Unavailable.
	Score float64 `json:"score"`

	// Reason is an optional short justification (narrative provider only).
	Reason string `json:"reason,omitempty"`

	// Unavailable marks that the provider could not produce a valid
	// number; Cause carries the diagnostic for logging.
	Unavailable bool   `json:"unavailable,omitempty"`
	Cause       string `json:"cause,omitempty"`
}

// Scored builds a successful provider result.
func Scored(score float64, reason string) ScoreResult {
	return ScoreResult{Score: score, Reason: reason}
}

// Unavailable builds a failed provider result with a diagnostic cause.
func Unavailable(cause string) ScoreResult {
	return ScoreResult{Unavailable: true, Cause: cause}
}

// RiskAssessment is the combined, request-scoped scoring output for one
// transaction. Both provider scores are already clamped to [0,1] and
// fallback-substituted where a provider was unavailable.
type RiskAssessment struct {
	NumericScore    float64 `json:"numericScore"`
	NarrativeScore  float64 `json:"narrativeScore"`
	NarrativeReason string  `json:"narrativeReason,omitempty"`

	// FinalScore drives the alert decision.
	FinalScore float64 `json:"finalScore"`
}
