package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in run summaries and internal error handling.
const (
	ErrCodeTimeout      = "NAV_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeBrowser      = "BROWSER_FAILURE"
	ErrCodeCaptcha      = "CAPTCHA_DETECTED"
	ErrCodeParse        = "PARSE_FAILURE"
	ErrCodeValidation   = "VALIDATION_FAILURE"
	ErrCodeContent      = "CONTENT_PIPELINE_FAILED"
	ErrCodeStore        = "STORE_FAILURE"
	ErrCodeProbe        = "PROBE_FAILURE"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Extraction-collaborator error codes.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
)

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ErrorCode extracts the ScrapeError code from an error chain.
// Unknown errors classify as INTERNAL_ERROR; context deadline and
// cancellation map to NAV_TIMEOUT since every deadline in the pipeline
// guards a page load or a collaborator call.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}
