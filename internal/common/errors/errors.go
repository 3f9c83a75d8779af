package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is the stable, machine-readable identifier carried by every StandardError.
type ErrorCode string

const (
	ErrCodeMissingVariable      ErrorCode = "MISSING_VARIABLE"
	ErrCodeMalformedModelOutput ErrorCode = "MALFORMED_MODEL_OUTPUT"
	ErrCodeProviderError        ErrorCode = "PROVIDER_ERROR"
	ErrCodeBackendUnavailable   ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeQueryCancelled       ErrorCode = "QUERY_CANCELLED"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// Sentinels so callers can use errors.Is without caring about the concrete details.
var (
	ErrMissingVariable      = &StandardError{Code: ErrCodeMissingVariable}
	ErrMalformedModelOutput = &StandardError{Code: ErrCodeMalformedModelOutput}
	ErrProviderError        = &StandardError{Code: ErrCodeProviderError}
	ErrBackendUnavailable   = &StandardError{Code: ErrCodeBackendUnavailable}
	ErrQueryCancelled       = &StandardError{Code: ErrCodeQueryCancelled}
	ErrTemplateNotFound     = &StandardError{Code: ErrCodeTemplateNotFound}
	ErrInvalidRequest       = &StandardError{Code: ErrCodeInvalidRequest}
	ErrInternal             = &StandardError{Code: ErrCodeInternal}
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches any StandardError carrying the same code.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func NewMissingVariableError(template, variable string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingVariable,
		Message:   "Template references a variable that was not supplied",
		Details:   fmt.Sprintf("template: %s, variable: %s", template, variable),
		Retryable: false,
		Metadata:  map[string]interface{}{"template": template, "variable": variable},
		Timestamp: time.Now().UTC(),
	}
}

func NewMalformedModelOutputError(template string, cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedModelOutput,
		Message:   "Model response did not match the expected schema",
		Details:   fmt.Sprintf("template: %s, error: %v", template, cause),
		Retryable: false,
		Metadata:  map[string]interface{}{"template": template},
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewProviderError(template string, cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderError,
		Message:   "Language model call failed",
		Details:   fmt.Sprintf("template: %s, error: %v", template, cause),
		Retryable: true,
		Metadata:  map[string]interface{}{"template": template},
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewBackendUnavailableError(backend string, cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendUnavailable,
		Message:   "Retrieval backend unavailable",
		Details:   fmt.Sprintf("backend: %s, error: %v", backend, cause),
		Retryable: true,
		Metadata:  map[string]interface{}{"backend": backend},
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewQueryCancelledError(queryID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryCancelled,
		Message:   "Query was cancelled",
		Details:   fmt.Sprintf("queryId: %s", queryID),
		Retryable: false,
		Metadata:  map[string]interface{}{"queryId": queryID},
		Timestamp: time.Now().UTC(),
	}
}

func NewTemplateNotFoundError(name, itemType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "No prompt template registered for this type chain",
		Details:   fmt.Sprintf("prompt: %s, itemType: %s", name, itemType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid query request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected internal error",
		Details:   fmt.Sprint(cause),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// CodeOf returns the code of the first StandardError in the chain, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

var errorRetryMapping = map[ErrorCode]int{
	ErrCodeProviderError:      2,
	ErrCodeBackendUnavailable: 2,
}

func GetRetryCount(code ErrorCode) int {
	return errorRetryMapping[code]
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsLocallyRecoverable reports whether a failure only drops one call's contribution
// instead of ending the query.
func IsLocallyRecoverable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeMalformedModelOutput, ErrCodeProviderError, ErrCodeBackendUnavailable,
		ErrCodeMissingVariable, ErrCodeTemplateNotFound:
		return true
	}
	return false
}

func GetErrorCategory(code ErrorCode) string {
	switch {
	case strings.Contains(string(code), "MODEL") || strings.Contains(string(code), "PROVIDER"):
		return "MODEL"
	case strings.Contains(string(code), "BACKEND"):
		return "RETRIEVAL"
	case strings.Contains(string(code), "VARIABLE") || strings.Contains(string(code), "TEMPLATE"):
		return "TEMPLATE"
	case code == ErrCodeQueryCancelled:
		return "CANCELLATION"
	case code == ErrCodeInvalidRequest:
		return "VALIDATION"
	default:
		return "SYSTEM"
	}
}

// BPMNErrorMapping maps internal codes onto the error codes modelled in BPMN boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidRequest:     "NLWEB_INVALID_REQUEST",
	ErrCodeQueryCancelled:     "NLWEB_QUERY_CANCELLED",
	ErrCodeBackendUnavailable: "NLWEB_RETRIEVAL_UNAVAILABLE",
	ErrCodeProviderError:      "NLWEB_MODEL_UNAVAILABLE",
	ErrCodeInternal:           "NLWEB_INTERNAL_ERROR",
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}
