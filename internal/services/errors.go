package services

// ValidationError rejects malformed input before any external call. Always
// HTTP 400, never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	errInvalidAmount   = &ValidationError{Message: "Invalid amount"}
	errInvalidCurrency = &ValidationError{Message: "Invalid currency"}
	errInvalidStatus   = &ValidationError{Message: "Invalid status"}
)
