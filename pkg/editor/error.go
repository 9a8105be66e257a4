// pkg/editor/error.go
package editor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/David-Botos/parquet-editor/pkg/compiler"
	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/planner"
	"github.com/David-Botos/parquet-editor/pkg/quote"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
	"github.com/David-Botos/parquet-editor/pkg/session"
)

// Sentinel errors reported by the service. Match them with errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnreachableSource   = errors.New("source unreachable")
	ErrEmptyResult         = errors.New("empty result")
	ErrCompilationRejected = errors.New("compilation rejected")
	ErrDestinationBusy     = errors.New("destination busy")
	ErrInPlaceRewrite      = errors.New("in-place rewrite not supported")
	ErrSessionNotFound     = errors.New("session not found")
	ErrEngineExecution     = errors.New("engine execution failed")
	ErrVerificationFailed  = errors.New("output verification failed")
)

// ErrorCategory groups service errors by how a client should react
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryInvalidRequest
	ErrorCategoryNotFound
	ErrorCategoryUnreachableSource
	ErrorCategoryEmptyResult
	ErrorCategoryCompilationRejected
	ErrorCategoryConflict
	ErrorCategoryEngineExecution
	ErrorCategoryVerification
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryInvalidRequest:
		return "InvalidRequest"
	case ErrorCategoryNotFound:
		return "NotFound"
	case ErrorCategoryUnreachableSource:
		return "UnreachableSource"
	case ErrorCategoryEmptyResult:
		return "EmptyResult"
	case ErrorCategoryCompilationRejected:
		return "CompilationRejected"
	case ErrorCategoryConflict:
		return "Conflict"
	case ErrorCategoryEngineExecution:
		return "EngineExecution"
	case ErrorCategoryVerification:
		return "Verification"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

var categories = map[error]ErrorCategory{
	ErrInvalidRequest:      ErrorCategoryInvalidRequest,
	ErrSessionNotFound:     ErrorCategoryNotFound,
	ErrUnreachableSource:   ErrorCategoryUnreachableSource,
	ErrEmptyResult:         ErrorCategoryEmptyResult,
	ErrCompilationRejected: ErrorCategoryCompilationRejected,
	ErrDestinationBusy:     ErrorCategoryConflict,
	ErrInPlaceRewrite:      ErrorCategoryConflict,
	ErrEngineExecution:     ErrorCategoryEngineExecution,
	ErrVerificationFailed:  ErrorCategoryVerification,
}

// Error is a categorized service error
type Error struct {
	Kind error  // One of the sentinel errors above
	Op   string // Operation that failed, e.g. "commit"
	Path string // File the operation was acting on, if any
	Err  error  // Underlying cause (may be nil)
}

// Error returns a formatted error message
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Path != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Path))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error against its sentinel kind
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Category returns the category of the error kind
func (e *Error) Category() ErrorCategory {
	return categories[e.Kind]
}

// CategoryOf returns the category of err, or ErrorCategoryNone for foreign errors
func CategoryOf(err error) ErrorCategory {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Category()
	}
	return ErrorCategoryNone
}

func newError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// kindOf maps errors from lower layers onto service sentinels
func kindOf(err error) error {
	switch {
	case errors.Is(err, locator.ErrInvalidPath),
		errors.Is(err, planner.ErrInvalidWindow),
		errors.Is(err, session.ErrInvalidRowID),
		errors.Is(err, session.ErrInvalidColumn):
		return ErrInvalidRequest
	case errors.Is(err, compiler.ErrNoColumns),
		errors.Is(err, compiler.ErrNoSourceColumns),
		errors.Is(err, compiler.ErrUnsupportedType),
		errors.Is(err, rowid.ErrReservedColumn),
		errors.Is(err, quote.ErrNulByte):
		return ErrCompilationRejected
	case errors.Is(err, engine.ErrUnreachable):
		return ErrUnreachableSource
	case errors.Is(err, planner.ErrEmptyResult):
		return ErrEmptyResult
	default:
		return ErrEngineExecution
	}
}
