package log

// Canonical field name constants for structured logging.
const (
	FieldComponent = "component"
	FieldEvent     = "event"

	FieldURL         = "url"
	FieldFinalURL    = "final_url"
	FieldLocator     = "locator"
	FieldContentType = "content_type"

	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldAttempt  = "attempt"
	FieldPosition = "position"
	FieldCount    = "count"
)
