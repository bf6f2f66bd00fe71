package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeRemote       ErrCode = "REMOTE_ERROR"
	ErrCodeExport       ErrCode = "EXPORT_ERROR"
	ErrCodeConfig       ErrCode = "CONFIG_ERROR"
	ErrCodeReportIO     ErrCode = "REPORT_IO_ERROR"
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"
	ErrCodeBadRequest   ErrCode = "BAD_REQUEST"
)

// AppError represents an application error
type AppError struct {
	Code       ErrCode
	Message    string
	StatusCode int // HTTP status of the remote response, 0 when not applicable
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates an error for a failed call against Omeka S or WordPress
func NewRemoteError(message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       ErrCodeRemote,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewExportError creates an error for an export that failed or returned unusable content
func NewExportError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeExport,
		Message: message,
		Err:     err,
	}
}

// NewConfigError creates an error for malformed configuration or report input
func NewConfigError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConfig,
		Message: message,
		Err:     err,
	}
}

// NewReportIOError creates an error for a report that could not be persisted
func NewReportIOError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeReportIO,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

func hasCode(err error, code ErrCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRemote checks if the error is a remote error
func IsRemote(err error) bool { return hasCode(err, ErrCodeRemote) }

// IsExport checks if the error is an export error
func IsExport(err error) bool { return hasCode(err, ErrCodeExport) }

// IsConfig checks if the error is a configuration error
func IsConfig(err error) bool { return hasCode(err, ErrCodeConfig) }

// IsReportIO checks if the error is a report persistence error
func IsReportIO(err error) bool { return hasCode(err, ErrCodeReportIO) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsFatal reports whether err must abort a whole run rather than a single channel
func IsFatal(err error) bool {
	return IsConfig(err) || IsReportIO(err)
}
