package analysis

// Result is the structured outcome of analyzing a test failure.
//
// All four fields are always populated, including in degraded modes; the
// fields carry no JSON tags so that the wire form matches the field names the
// reasoning service is prompted to emit.
type Result struct {
	// RootCauseExplanation describes why the tests failed.
	RootCauseExplanation string

	// Patch is a proposed fix as a unified diff. May be empty.
	Patch string

	// TestSuggestions describes additional tests worth adding.
	TestSuggestions string

	// RiskAssessment is a free-form severity label for applying the patch.
	RiskAssessment string
}

// Risk labels used by the degraded-mode results.
const (
	riskLow     = "Low"
	riskMedium  = "Medium"
	riskUnknown = "Unknown"
)
