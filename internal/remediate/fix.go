// CLAUDE:SUMMARY Fix categories — closed enum of automatable bias remediations with canonical application order
package remediate

// FixCategory names one automatable remediation. The set is closed: plans
// reference these constants, and the engine dispatches on them directly.
type FixCategory string

const (
	FixWalkForward        FixCategory = "walk_forward_optimization"
	FixParameterReduction FixCategory = "parameter_space_reduction"
	FixMTCorrections      FixCategory = "multiple_testing_corrections"
	FixOOSValidation      FixCategory = "out_of_sample_validation"
)

// fixOrder is the canonical application order within an iteration.
var fixOrder = []FixCategory{
	FixWalkForward,
	FixParameterReduction,
	FixMTCorrections,
	FixOOSValidation,
}

// Label returns the human-readable action description recorded per run.
func (f FixCategory) Label() string {
	switch f {
	case FixWalkForward:
		return "Walk-forward optimization applied"
	case FixParameterReduction:
		return "Parameter space reduction applied"
	case FixMTCorrections:
		return "Multiple testing corrections applied"
	case FixOOSValidation:
		return "Out-of-sample validation enforced"
	default:
		return string(f)
	}
}

// Valid reports whether f is one of the known categories.
func (f FixCategory) Valid() bool {
	switch f {
	case FixWalkForward, FixParameterReduction, FixMTCorrections, FixOOSValidation:
		return true
	}
	return false
}
