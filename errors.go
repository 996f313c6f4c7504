// Package dvar holds the pieces shared by every package of the variational
// assimilation library, most importantly the error taxonomy.
//
// Two families of failure exist. Configuration errors are raised while
// building a component (bad shapes, mismatched lengths, missing adjoints,
// invalid metrics, a correlation function whose spectrum is not positive).
// Precondition errors are raised at call time (un-referenced tangent-linear
// propagator, empty observation window, mismatched time keys, length
// mismatches in adjoint calls). Both are returned as *Error values and can
// be matched with errors.Is against ErrConfiguration and ErrPrecondition.
//
// Non-convergence of a minimization is not an error; it is reported through
// the warning flag of the minimization result.
package dvar

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies errors for consistent handling.
type Category string

const (
	CategoryConfiguration Category = "configuration" // raised at construction
	CategoryPrecondition  Category = "precondition"  // raised at call time
)

// Error codes.
const (
	CodeShapeMismatch      = "SHAPE_MISMATCH"
	CodeLengthMismatch     = "LENGTH_MISMATCH"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeMissingAdjoint     = "MISSING_ADJOINT"
	CodeOperatorMismatch   = "OPERATOR_MISMATCH"
	CodeUnknownOperator    = "UNKNOWN_OPERATOR"
	CodeInvalidMetric      = "INVALID_METRIC"
	CodeNegativeSpectrum   = "NEGATIVE_SPECTRUM"
	CodeDuplicateTime      = "DUPLICATE_TIME"
	CodeEmptyWindow        = "EMPTY_WINDOW"
	CodeUnreferenced       = "UNREFERENCED_TANGENT_LINEAR"
	CodeTrajectoryRange    = "TRAJECTORY_RANGE"
	CodeTimeKeysMismatch   = "TIME_KEYS_MISMATCH"
	CodeOutOfGrid          = "OUT_OF_GRID"
	CodeZeroNorm           = "ZERO_NORM"
	CodeNonFinite          = "NON_FINITE"
	CodeInvalidPersistence = "INVALID_PERSISTENCE"
)

// Error is a structured error with a code, a category and optional context.
type Error struct {
	// Code identifies the kind of failure (e.g. LENGTH_MISMATCH).
	Code string
	// Category is either configuration or precondition.
	Category Category
	// Message describes what went wrong.
	Message string
	// Context holds additional key-value details.
	Context map[string]string
	// Cause is the wrapped error, if any.
	Cause error
}

// Sentinels matching every error of their category.
var (
	ErrConfiguration = &Error{Category: CategoryConfiguration}
	ErrPrecondition  = &Error{Category: CategoryPrecondition}
)

// Configuration returns a new configuration error.
func Configuration(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Category: CategoryConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Precondition returns a new precondition error.
func Precondition(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Category: CategoryPrecondition, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Category))
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches e. A target without a code matches every
// error of the same category; otherwise codes must be equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Category == e.Category
	}
	return t.Code == e.Code
}

// WithContext adds a key-value pair and returns the error for chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = fmt.Sprint(value)
	return e
}

// WithCause wraps an underlying error and returns the error for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// LengthMismatch is the precondition error raised when a vector does not have
// the length an operation expects.
func LengthMismatch(what string, got, want int) *Error {
	return Precondition(CodeLengthMismatch, "%s has length %d, expected %d", what, got, want)
}
