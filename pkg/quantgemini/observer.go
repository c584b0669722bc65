package quantgemini

import "time"

// Pipeline stages reported to observers and progress callbacks.
const (
	StageGrounding  = "grounding"
	StageExtracting = "extracting"
	StageAssembling = "assembling"
	StageDone       = "done"
)

// Analysis outcomes reported to observers.
const (
	OutcomeSuccess          = "success"
	OutcomeTransportFailure = "transport_failure"
	OutcomeFormatFailure    = "format_failure"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeError            = "error"
)

// Observer receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveModelCall(stage string, duration time.Duration, err error)
	ObserveAnalysis(outcome string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveModelCall(string, time.Duration, error) {}
func (nopObserver) ObserveAnalysis(string, time.Duration)         {}

// AnalysisOutcome classifies the error returned by Analyze.
func AnalysisOutcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	code, _ := CodeOf(err)
	switch code {
	case ErrCodeTransport:
		return OutcomeTransportFailure
	case ErrCodeFormat:
		return OutcomeFormatFailure
	case ErrCodeInvalidInput:
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}
