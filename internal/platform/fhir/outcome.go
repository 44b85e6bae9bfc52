package fhir

// Issue severities and codes used by the gateway.
const (
	SeverityError  = "error"
	CodeProcessing = "processing"
	CodeInvalid    = "invalid"
)

// OperationOutcome reports why a FHIR operation failed.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{{
			Severity:    severity,
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// ErrorOutcome is a processing error with diagnostics.
func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(SeverityError, CodeProcessing, diagnostics)
}

// InvalidOutcome reports request content that could not be understood.
func InvalidOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(SeverityError, CodeInvalid, diagnostics)
}
