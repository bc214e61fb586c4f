package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// InternalError is implemented by package-local error types that know how to
// convert themselves into an *Error
type InternalError interface {
	error
	Transform() *Error
}

// GetContext extracts the context map of the outermost *Error in the chain
func GetContext(err error) map[string]string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Context
	}
	return nil
}

// GetCode returns the code of the outermost *Error in the chain, or ""
func GetCode(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code.String()
	}
	return ""
}

// FormatError renders an error with its code and context for human output
func FormatError(err error) string {
	var e *Error
	if !stderrors.As(err, &e) {
		return err.Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Code: %s", e.Code))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts = append(parts, "Context:")
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("  %s: %v", k, e.Context[k]))
		}
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	return strings.Join(parts, "\n")
}

// AsError converts any error to *Error. InternalError values are transformed,
// *Error values are returned as-is and anything else becomes common.internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	if ie, ok := err.(InternalError); ok {
		return ie.Transform()
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	return New(CommonInternal, err.Error(), err)
}
