package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured pipeline error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes, one per failure class of the pipeline
const (
	CodeDataLoad        = "DATA_LOAD_ERROR"
	CodeQuery           = "QUERY_ERROR"
	CodePersistence     = "PERSISTENCE_ERROR"
	CodeBatchItem       = "BATCH_ITEM_ERROR"
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeCatalogNotFound = "CATALOG_NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with additional context, keeping the code of a wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode wraps err under the given code
func WithCode(code string, err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

func DataLoad(path string, cause error) *AppError {
	return &AppError{Code: CodeDataLoad, Message: fmt.Sprintf("load DEGs from %s", path), Cause: cause}
}

func Query(label string, cause error) *AppError {
	return &AppError{Code: CodeQuery, Message: fmt.Sprintf("enrichment %s", label), Cause: cause}
}

func Persistence(key string, cause error) *AppError {
	return &AppError{Code: CodePersistence, Message: fmt.Sprintf("persist %s", key), Cause: cause}
}

func BatchItem(path string, cause error) *AppError {
	return &AppError{Code: CodeBatchItem, Message: fmt.Sprintf("process %s", path), Cause: cause}
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func CatalogNotFound(organism string) *AppError {
	return New(CodeCatalogNotFound, fmt.Sprintf("no library catalog for organism %q and no default", organism))
}
