// Package importerror defines the error kinds an import can fail with and
// how database failures map onto them.
package importerror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
)

type Kind string

const (
	KindMalformedInput Kind = "malformed_input"
	KindValidation     Kind = "validation"
	KindMergeConflict  Kind = "merge_conflict"
	KindConnection     Kind = "connection"
	KindTransition     Kind = "illegal_transition"
	KindInternal       Kind = "internal"
)

// MalformedInputError means the upload could not be read as a table. Nothing is staged.
type MalformedInputError struct {
	Reason string
	Line   int
	Err    error
}

func NewMalformedInput(reason string, line int, err error) *MalformedInputError {
	return &MalformedInputError{Reason: reason, Line: line, Err: err}
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %s", e.Line, e.Reason)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return e.Err }
func (e *MalformedInputError) StatusCode() int { return http.StatusBadRequest }

// ValidationError carries the ordered messages for one rejected row.
type ValidationError struct {
	RowNumber int
	Messages  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d failed validation: %s", e.RowNumber, strings.Join(e.Messages, "; "))
}

func (e *ValidationError) StatusCode() int { return http.StatusUnprocessableEntity }

// MergeConflictError is a uniqueness violation hit while committing one record.
type MergeConflictError struct {
	Op         string
	Constraint string
	Err        error
}

func (e *MergeConflictError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("merge conflict during %s: duplicate value violates %s", e.Op, e.Constraint)
	}
	return fmt.Sprintf("merge conflict during %s: duplicate value", e.Op)
}

func (e *MergeConflictError) Unwrap() error { return e.Err }
func (e *MergeConflictError) StatusCode() int { return http.StatusConflict }

// ConnectionError means the database could not be reached. It is fatal to the running stage.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database unavailable during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
func (e *ConnectionError) StatusCode() int { return http.StatusServiceUnavailable }

// TransitionError is a batch status change the lifecycle does not allow,
// usually because another run moved the batch first.
type TransitionError struct {
	BatchID string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("import batch %s cannot move from %s to %s", e.BatchID, e.From, e.To)
}

func (e *TransitionError) StatusCode() int { return http.StatusConflict }

// FromDB classifies a database error raised while performing op.
func FromDB(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case database.IsUniqueViolation(err):
		return &MergeConflictError{Op: op, Constraint: database.ConstraintName(err), Err: err}
	case database.IsConnectionError(err):
		return &ConnectionError{Op: op, Err: err}
	case database.IsNotFound(err):
		return httperror.NewHTTPError(http.StatusNotFound, "not found: "+op)
	default:
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to "+op)
	}
}

// KindOf names the kind of err for per-record reporting.
func KindOf(err error) Kind {
	var malformed *MalformedInputError
	var validation *ValidationError
	var conflict *MergeConflictError
	var connection *ConnectionError
	var transition *TransitionError
	switch {
	case errors.As(err, &malformed):
		return KindMalformedInput
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &conflict):
		return KindMergeConflict
	case errors.As(err, &connection):
		return KindConnection
	case errors.As(err, &transition):
		return KindTransition
	default:
		return KindInternal
	}
}

// IsFatal reports whether err must stop the batch instead of one record.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindConnection || k == KindMalformedInput
}

// StatusCode returns the HTTP status carried by an import error.
func StatusCode(err error) (int, bool) {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode(), true
	}
	return 0, false
}

// NotFound is the 404 returned when a row looked up by id does not exist.
func NotFound(kind, id string) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", kind, id)
}
