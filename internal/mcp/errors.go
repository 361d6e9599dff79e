package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/fundflow/internal/domain/project"
)

var (
	// ErrUnknownMethod indicates a method name outside the catalog.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrInvalidParams indicates params that do not decode into the method's input.
	ErrInvalidParams = errors.New("invalid params")
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	err          error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

func (e *APIError) CodeValue() string {
	return e.Code
}

func (e *APIError) MessageValue() string {
	return e.Message
}

func (e *APIError) DetailsValue() any {
	return e.Details
}

func (e *APIError) RecoveryHintValue() string {
	return e.RecoveryHint
}

var recoveryHints = map[string]string{
	project.CodeInvalidAmount:       "Use a positive amount that fits in a signed 64-bit integer",
	project.CodeNotAuthorized:       "Call as the project initiator, or as the governing authority for approvals",
	project.CodeNotFound:            "Check the ID; list_projects and list_packages show what exists",
	project.CodeInvalidState:        "Check the current state with get_project or get_package",
	project.CodeInsufficientBudget:  "Reduce the amount or free budget by cancelling packages or removing collaborators",
	project.CodeTokenTransferFailed: "Check the initiator's token balance and the allowance granted to the engine",
	project.CodeOpenPackagesExist:   "Finish or cancel every open package first",
	project.CodeInvalidInput:        "Provide a non-empty identity",
}

// MapError maps engine errors to MCP error codes. It returns nil for errors
// that carry no engine kind.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	code := project.Code(err)
	if code == project.CodeInternal {
		return nil
	}
	return &APIError{
		Code:         code,
		Message:      err.Error(),
		RecoveryHint: recoveryHints[code],
		err:          err,
	}
}
