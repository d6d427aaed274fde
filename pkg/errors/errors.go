// Package errors provides the structured error model for diskvfs: every failure the
// filesystem core reports carries an error code, a category and the operation and path
// it happened on.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ErrorCode represents a structured error code for diskvfs operations.
type ErrorCode string

const (
	// Path and argument validation
	ErrCodeInvalidPath     ErrorCode = "INVALID_PATH"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNegativeSeek    ErrorCode = "INVALID_NEGATIVE_SEEK"

	// Filesystem tree
	ErrCodeFileNotFound       ErrorCode = "FILE_NOT_FOUND"
	ErrCodeFileAlreadyExists  ErrorCode = "FILE_ALREADY_EXISTS"
	ErrCodeParentNotDirectory ErrorCode = "FILE_PARENT_NOT_DIRECTORY"
	ErrCodeDestinationIsFile  ErrorCode = "FILE_DESTINATION_IS_FILE"
	ErrCodeDirectoryNotEmpty  ErrorCode = "DIRECTORY_NOT_EMPTY"
	ErrCodeNotDirectory       ErrorCode = "DIRECTORY_EXPECTED"

	// Identity
	ErrCodeMissingIdentity     ErrorCode = "IDENTITY_MISSING"
	ErrCodeUnknownPrincipal    ErrorCode = "IDENTITY_UNKNOWN_PRINCIPAL"
	ErrCodeCrossDomainMismatch ErrorCode = "IDENTITY_CROSS_DOMAIN_MISMATCH"

	// Configuration
	ErrCodeInvalidConfig ErrorCode = "CONFIG_INVALID"

	// Native layer
	ErrCodeUnsupported ErrorCode = "NATIVE_UNSUPPORTED"
	ErrCodeIO          ErrorCode = "NATIVE_IO"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryIdentity      ErrorCategory = "identity"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNative        ErrorCategory = "native"
)

// Error is a coded diskvfs error with operational context.
type Error struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	Path      string `json:"path,omitempty"`

	HTTPStatus int `json:"-"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	if e.Component != "" {
		sb.WriteString("[")
		sb.WriteString(e.Component)
		if e.Operation != "" {
			sb.WriteString(":")
			sb.WriteString(e.Operation)
		}
		sb.WriteString("] ")
	} else if e.Operation != "" {
		sb.WriteString(e.Operation)
		sb.WriteString(" ")
	}
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Path != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Path)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code, so the sentinel
// values below work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *Error) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("Path=%s", e.Path))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("Error{%s}", strings.Join(parts, ", "))
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrInvalidPath         = &Error{Code: ErrCodeInvalidPath}
	ErrInvalidArgument     = &Error{Code: ErrCodeInvalidArgument}
	ErrNegativeSeek        = &Error{Code: ErrCodeNegativeSeek}
	ErrNotFound            = &Error{Code: ErrCodeFileNotFound}
	ErrAlreadyExists       = &Error{Code: ErrCodeFileAlreadyExists}
	ErrParentNotDirectory  = &Error{Code: ErrCodeParentNotDirectory}
	ErrDestinationIsFile   = &Error{Code: ErrCodeDestinationIsFile}
	ErrDirectoryNotEmpty   = &Error{Code: ErrCodeDirectoryNotEmpty}
	ErrNotDirectory        = &Error{Code: ErrCodeNotDirectory}
	ErrMissingIdentity     = &Error{Code: ErrCodeMissingIdentity}
	ErrUnknownPrincipal    = &Error{Code: ErrCodeUnknownPrincipal}
	ErrCrossDomainMismatch = &Error{Code: ErrCodeCrossDomainMismatch}
	ErrInvalidConfig       = &Error{Code: ErrCodeInvalidConfig}
	ErrUnsupported         = &Error{Code: ErrCodeUnsupported}
	ErrIO                  = &Error{Code: ErrCodeIO}
)

// NewError creates a new error with default category and HTTP status for the code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf is NewError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_"):
		return CategoryValidation
	case strings.HasPrefix(codeStr, "FILE_") || strings.HasPrefix(codeStr, "DIRECTORY_"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "IDENTITY_"):
		return CategoryIdentity
	case strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	default:
		return CategoryNative
	}
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidPath:         400, // Bad Request
		ErrCodeInvalidArgument:     400,
		ErrCodeNegativeSeek:        400,
		ErrCodeMissingIdentity:     400,
		ErrCodeInvalidConfig:       400,
		ErrCodeFileNotFound:        404, // Not Found
		ErrCodeFileAlreadyExists:   409, // Conflict
		ErrCodeParentNotDirectory:  409,
		ErrCodeDestinationIsFile:   409,
		ErrCodeDirectoryNotEmpty:   409,
		ErrCodeNotDirectory:        409,
		ErrCodeUnknownPrincipal:    422, // Unprocessable Entity
		ErrCodeCrossDomainMismatch: 422,
		ErrCodeUnsupported:         501, // Not Implemented
		ErrCodeIO:                  500,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// IsHealthFailure reports whether err points at the native layer rather than at the caller.
// Validation and tree-state errors are the caller's problem and do not degrade health.
func IsHealthFailure(err error) bool {
	if err == nil {
		return false
	}
	code := CodeOf(err)
	return code == ErrCodeIO || code == "" && !stderr.Is(err, fs.ErrNotExist)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderr.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatusOf returns the HTTP status for err, 500 for uncoded errors.
func HTTPStatusOf(err error) int {
	var e *Error
	if stderr.As(err, &e) {
		if e.HTTPStatus != 0 {
			return e.HTTPStatus
		}
		return GetDefaultHTTPStatus(e.Code)
	}
	return 500
}

// IsUnsupported reports whether err signals a missing native capability.
func IsUnsupported(err error) bool {
	return stderr.Is(err, ErrUnsupported) || stderr.Is(err, stderr.ErrUnsupported) ||
		stderr.Is(err, syscall.ENOTSUP) || stderr.Is(err, syscall.ENOSYS)
}

// FromOS classifies a native error into the diskvfs taxonomy.
func FromOS(op, path string, err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if stderr.As(err, &coded) {
		return coded
	}

	var code ErrorCode
	var msg string
	switch {
	case stderr.Is(err, fs.ErrNotExist):
		code, msg = ErrCodeFileNotFound, "no such file or directory"
	case stderr.Is(err, syscall.ENOTEMPTY):
		// checked before fs.ErrExist, which ENOTEMPTY also matches
		code, msg = ErrCodeDirectoryNotEmpty, "directory is not empty"
	case stderr.Is(err, fs.ErrExist):
		code, msg = ErrCodeFileAlreadyExists, "file already exists"
	case stderr.Is(err, syscall.ENOTDIR):
		code, msg = ErrCodeParentNotDirectory, "a path component is not a directory"
	case IsUnsupported(err):
		code, msg = ErrCodeUnsupported, "operation not supported"
	default:
		code, msg = ErrCodeIO, "native call failed"
	}
	return NewError(code, msg).WithOperation(op).WithPath(path).WithCause(err)
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithDetail adds detailed information to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithPath sets the virtual or native path the error refers to
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithCause sets the underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *Error) WithStack() *Error {
	e.Stack = CaptureStack(2)
	return e
}

// JSON returns the error as a JSON string.
func (e *Error) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}
