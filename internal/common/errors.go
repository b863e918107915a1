package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes attached to terminal pipeline failures.
const (
	CodeBinaryMissing = "BINARY_MISSING"
	CodeRenderFailure = "RENDER_FAILURE"
	CodeNoPages       = "NO_PAGES"
	CodeUnsupported   = "UNSUPPORTED_FORMAT"
	CodePipelineFatal = "PIPELINE_FATAL"
)

// Common application errors
var (
	// ErrBinaryMissing means a required external binary could not be resolved.
	// Raised at construction time so the pipeline cannot start half-configured.
	ErrBinaryMissing = errors.New("required binary missing")
	// ErrRenderFailure means the PDF rasterizer produced no usable pages;
	// fatal for the run since there is no OCR input without them.
	ErrRenderFailure = errors.New("render failure")
	// ErrNoPages means a PDF contained zero renderable pages.
	ErrNoPages = errors.New("no pages")
	// ErrUnsupportedFormat means the input extension/source type is not handled.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptyInput means the document contained no bytes or text at all.
	ErrEmptyInput = errors.New("empty input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorCode maps err to its result error code, defaulting to PIPELINE_FATAL.
func ErrorCode(err error) string {
	var app *AppError
	if errors.As(err, &app) && app.Code != "" {
		return app.Code
	}
	switch {
	case errors.Is(err, ErrBinaryMissing):
		return CodeBinaryMissing
	case errors.Is(err, ErrRenderFailure), errors.Is(err, ErrNoPages):
		return CodeRenderFailure
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupported
	}
	return CodePipelineFatal
}
