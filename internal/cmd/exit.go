package cmd

import (
	"errors"
	"fmt"
)

// codedError carries a foundry exit code up through cobra's RunE
// chain.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.msg, e.err, e.code)
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, msg: message, err: err}
}

// exitCode extracts the foundry code from an error chain; unclassified
// errors map to 1.
func exitCode(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
