// Package sentinel defines Error, a string type for declaring sentinel errors
// as constants. Values of Error compare by their text, so errors.Is matches
// them through wrapped chains while callers cannot reassign them.
package sentinel

var _ error = Error("")

// Error is a constant-declarable error.
type Error string

func (e Error) Error() string {
	return string(e)
}
