package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is an application-specific error type. Code is a stable string
// that may be persisted on tasks and pipeline state; it never contains a
// Go type name.
type AppError struct {
	Code    string
	Message string
	// RemoteCode carries the remote service's own error code (HTTP status
	// or provider code) for AsrRemoteError/LlmRemoteError.
	RemoteCode string
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with a stable code and message.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewRemote creates an AppError carrying a remote service's own code.
func NewRemote(code, remoteCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		RemoteCode: remoteCode,
	}
}

// Code extracts the stable code from err, or fallback when err carries none.
func Code(err error, fallback string) string {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return fallback
}

// RemoteCode extracts the remote service code from err, if any.
func RemoteCode(err error) string {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.RemoteCode
	}
	return ""
}

// Message extracts the message from err without the code prefix.
func Message(err error) string {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Error code constants
const (
	// Preflight and lookup failures. These occur before any task artifact
	// exists, so they surface to the caller instead of being persisted.
	CodeInvalidArgs           = "InvalidArgs"
	CodeSessionNotFound       = "SessionNotFound"
	CodeSessionStillRecording = "SessionStillRecording"
	CodeSessionNoChunks       = "SessionNoChunks"
	CodeTaskNotFound          = "TaskNotFound"
	CodeTaskAlreadyExists     = "TaskAlreadyExists"
	CodePipelineRunning       = "PipelineAlreadyRunning"
	CodeTranscriptNotReady    = "TranscriptNotReady"
	CodeInternal              = "InternalError"

	// ASR failure taxonomy
	CodeAsrNetworkError = "AsrNetworkError"
	CodeAsrUploadError  = "AsrUploadError"
	CodeAsrParseError   = "AsrParseError"
	CodeAsrTaskTimeout  = "AsrTaskTimeout"
	CodeAsrRemoteError  = "AsrRemoteError"

	// Translation failure taxonomy
	CodeLlmNetworkError  = "LlmNetworkError"
	CodeLlmRemoteError   = "LlmRemoteError"
	CodeLlmParseError    = "LlmParseError"
	CodeLlmQuotaExceeded = "LlmQuotaExceeded"
)
