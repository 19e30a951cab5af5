package classify

import "strings"

// State is the documentation status of one subcontractor.
type State string

const (
	StateVerified         State = "VERIFIED"
	StateUnverified       State = "UNVERIFIED"
	StateTechnicalFailure State = "TECHNICAL_FAILURE"
	StateAdministrative   State = "ADMINISTRATIVE"
	StateUnknown          State = "UNKNOWN"
)

// Action is the follow-up a result asks for.
type Action string

const (
	ActionNone                 Action = "none"
	ActionReviewExtraction     Action = "review_extraction_quality"
	ActionFixTechnicalIssue    Action = "fix_technical_issue"
	ActionInvestigateRootCause Action = "investigate_root_cause"
	ActionRequestCertificate   Action = "request_certificate"
	ActionManualInvestigation  Action = "manual_investigation"
	ActionSkip                 Action = "skip"
	ActionManualReview         Action = "manual_review"
)

// Destination names the report(s) a result is routed to. Combined
// destinations join report names with "+".
type Destination string

const (
	DestinationSuccessLog           Destination = "success_log"
	DestinationQAReport             Destination = "qa_report"
	DestinationErrorsReport         Destination = "errors_report"
	DestinationErrorsAndDiagnostics Destination = "errors_report+diagnostics"
	DestinationGapsReport           Destination = "gaps_report"
	DestinationGapsAndReviewQueue   Destination = "gaps_report+review_queue"
	DestinationMetadataReport       Destination = "metadata_report"
	DestinationReviewQueue          Destination = "review_queue"
)

// Reports splits a destination into its individual report names.
func (d Destination) Reports() []string {
	if d == "" {
		return nil
	}
	return strings.Split(string(d), "+")
}

// Confidence cut-offs of the action matrix. They are fixed so that audit
// trails stay comparable across runs.
const (
	VerifiedConfidence = 0.8
	FailureConfidence  = 0.7
	AbsenceConfidence  = 0.7
)

// Decide maps a state and confidence to its action and destination.
func Decide(state State, confidence float64) (Action, Destination) {
	switch state {
	case StateVerified:
		if confidence >= VerifiedConfidence {
			return ActionNone, DestinationSuccessLog
		}
		return ActionReviewExtraction, DestinationQAReport
	case StateTechnicalFailure:
		if confidence >= FailureConfidence {
			return ActionFixTechnicalIssue, DestinationErrorsReport
		}
		return ActionInvestigateRootCause, DestinationErrorsAndDiagnostics
	case StateUnverified:
		if confidence >= AbsenceConfidence {
			return ActionRequestCertificate, DestinationGapsReport
		}
		return ActionManualInvestigation, DestinationGapsAndReviewQueue
	case StateAdministrative:
		return ActionSkip, DestinationMetadataReport
	default:
		return ActionManualReview, DestinationReviewQueue
	}
}

// LegacyStatus maps a state onto the status column of older audit
// workbooks. Unknown results are reported as missing so they are chased.
func LegacyStatus(state State) string {
	switch state {
	case StateVerified:
		return "OK"
	case StateTechnicalFailure:
		return "PDF Error"
	case StateAdministrative:
		return "ADMINISTRATIVE"
	default:
		return "Missing PDF"
	}
}
