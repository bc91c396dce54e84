package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCaller identifies the observer that requested a check.
	FieldCaller = "caller"
	// FieldSequence is the check request sequence number.
	FieldSequence = "sequence"
	// FieldLanguage is the BCP-47 language tag a check ran with.
	FieldLanguage = "language"
	// FieldPort is the embedded server port.
	FieldPort = "port"
	// FieldRunID identifies one daemon process run.
	FieldRunID = "run_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
