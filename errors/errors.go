package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Decode errors
	ErrorTypeUnreadable  ErrorType = "decode_unreadable"
	ErrorTypeOutOfMemory ErrorType = "decode_out_of_memory"

	// Scratch and source I/O errors
	ErrorTypeReadFailed  ErrorType = "io_read_failed"
	ErrorTypeWriteFailed ErrorType = "io_write_failed"
	ErrorTypeStatFailed  ErrorType = "io_stat_failed"

	// Call errors
	ErrorTypeCanceled ErrorType = "canceled"
	ErrorTypeInvalid  ErrorType = "invalid"

	// System errors
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Sentinels for use with the standard errors.Is. Matching is by type only.
var (
	ErrUnreadable  = &AppError{Type: ErrorTypeUnreadable}
	ErrOutOfMemory = &AppError{Type: ErrorTypeOutOfMemory}
	ErrReadFailed  = &AppError{Type: ErrorTypeReadFailed}
	ErrWriteFailed = &AppError{Type: ErrorTypeWriteFailed}
	ErrStatFailed  = &AppError{Type: ErrorTypeStatFailed}
	ErrCanceled    = &AppError{Type: ErrorTypeCanceled}
	ErrInvalid     = &AppError{Type: ErrorTypeInvalid}
	ErrInternal    = &AppError{Type: ErrorTypeInternal}
)

// AppError represents a structured pipeline error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	InnerError error                  `json:"-"`
	Stack      []string               `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.InnerError != nil {
		return msg + ": " + e.InnerError.Error()
	}
	return msg
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithMessage adds a message to the error
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3)
	return e
}

// Is checks if this error is of a specific type
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// Stage returns the pipeline stage recorded on the error, if any.
func (e *AppError) Stage() string {
	if s, ok := e.Details["stage"].(string); ok {
		return s
	}
	return ""
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// FromError converts a standard error to AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Code:       string(ErrorTypeUnknown),
		Message:    err.Error(),
		InnerError: err,
	}
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown for foreign errors.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	return FromError(err).Type
}

// Decode errors
func NewUnreadable(err error) *AppError {
	return WrapWithType(err, ErrorTypeUnreadable, "image is not decodable")
}

func NewOutOfMemory(width, height, limit int64) *AppError {
	return New(ErrorTypeOutOfMemory, fmt.Sprintf("decode of %dx%d exceeds pixel budget", width, height)).
		WithDetail("width", width).
		WithDetail("height", height).
		WithDetail("limit", limit)
}

// I/O errors
func NewReadFailed(name string, err error) *AppError {
	return WrapWithType(err, ErrorTypeReadFailed, "read source").WithDetail("name", name)
}

func NewWriteFailed(path string, err error) *AppError {
	return WrapWithType(err, ErrorTypeWriteFailed, "write scratch artifact").WithDetail("path", path)
}

func NewStatFailed(path string, err error) *AppError {
	return WrapWithType(err, ErrorTypeStatFailed, "stat scratch artifact").WithDetail("path", path)
}

// Call errors
func NewCanceled(err error) *AppError {
	return WrapWithType(err, ErrorTypeCanceled, "compression canceled")
}

func NewInvalid(field string, value interface{}, reason string) *AppError {
	return New(ErrorTypeInvalid, fmt.Sprintf("invalid value for %s: %v", field, value)).
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("reason", reason)
}

func NewInternal(message string) *AppError {
	return New(ErrorTypeInternal, message)
}

// Recover converts a panic into an internal error. Use as
//
//	defer errors.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	var appErr *AppError
	switch v := r.(type) {
	case error:
		appErr = WrapWithType(v, ErrorTypeInternal, "panic recovered")
	case string:
		appErr = New(ErrorTypeInternal, v)
	default:
		appErr = New(ErrorTypeInternal, fmt.Sprintf("%v", v))
	}
	*errp = appErr.WithStack()
}

// ErrorFormatter formats errors for display
type ErrorFormatter struct {
	showStack bool
	showInner bool
}

// NewErrorFormatter creates a new error formatter
func NewErrorFormatter(showStack bool, showInner bool) *ErrorFormatter {
	return &ErrorFormatter{
		showStack: showStack,
		showInner: showInner,
	}
}

// Format formats an error as a string
func (f *ErrorFormatter) Format(err error) string {
	if err == nil {
		return ""
	}

	appErr := FromError(err)

	var parts []string
	msg := appErr.Message
	if msg == "" {
		msg = string(appErr.Type)
	}
	parts = append(parts, fmt.Sprintf("[%s] %s", appErr.Type, msg))

	if stage := appErr.Stage(); stage != "" {
		parts = append(parts, "stage="+stage)
	}

	if f.showStack && len(appErr.Stack) > 0 {
		parts = append(parts, "stack:")
		for _, s := range appErr.Stack {
			parts = append(parts, "  "+s)
		}
	}

	if f.showInner && appErr.InnerError != nil {
		parts = append(parts, "caused_by: "+appErr.InnerError.Error())
	}

	return strings.Join(parts, " | ")
}

// captureStack captures the call stack
func captureStack(skip int) []string {
	var stack []string
	for i := skip; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		funcName := fn.Name()
		if idx := strings.LastIndex(funcName, "/"); idx >= 0 {
			funcName = funcName[idx+1:]
		}

		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, funcName))
	}
	return stack
}
