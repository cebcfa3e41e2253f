package protocol

import "fmt"

// InvalidJSONError reports bytes that could not be parsed as a wire
// message. It is per-message and never fatal to a connection.
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("invalid json: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error { return e.Err }

// MissingFieldError reports a message missing a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}
