package project

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the engine matches exactly one of
// these with errors.Is.
var (
	// ErrInvalidAmount indicates a zero or out-of-range quantity.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNotAuthorized indicates the caller does not hold the required role.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotFound indicates an unknown project, package or collaborator.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the operation is not valid in the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientBudget indicates a reservation exceeded the available budget.
	ErrInsufficientBudget = errors.New("insufficient budget")
	// ErrTokenTransferFailed indicates the token ledger rejected a movement of funds.
	ErrTokenTransferFailed = errors.New("token transfer failed")
	// ErrOpenPackagesExist indicates a project cannot finish while packages are open.
	ErrOpenPackagesExist = errors.New("open packages exist")
	// ErrInvalidInput indicates a missing or malformed identity.
	ErrInvalidInput = errors.New("invalid input")
)

var (
	ErrProjectNotFound      = fmt.Errorf("%w: project", ErrNotFound)
	ErrPackageNotFound      = fmt.Errorf("%w: package", ErrNotFound)
	ErrCollaboratorNotFound = fmt.Errorf("%w: collaborator", ErrNotFound)

	ErrAlreadyApproved    = fmt.Errorf("%w: project already approved", ErrInvalidState)
	ErrNotApproved        = fmt.Errorf("%w: project is not approved", ErrInvalidState)
	ErrAlreadyStarted     = fmt.Errorf("%w: project already started", ErrInvalidState)
	ErrProjectNotStarted  = fmt.Errorf("%w: project is not started", ErrInvalidState)
	ErrProjectFinished    = fmt.Errorf("%w: project is finished", ErrInvalidState)
	ErrPackageClosed      = fmt.Errorf("%w: package is closed", ErrInvalidState)
	ErrCollaboratorsExist = fmt.Errorf("%w: package has collaborators", ErrInvalidState)
	ErrCollaboratorExists = fmt.Errorf("%w: collaborator already registered", ErrInvalidState)
)

// Stable codes for the error kinds, used by outer surfaces and metrics.
const (
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeNotAuthorized       = "NOT_AUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeInsufficientBudget  = "INSUFFICIENT_BUDGET"
	CodeTokenTransferFailed = "TOKEN_TRANSFER_FAILED"
	CodeOpenPackagesExist   = "OPEN_PACKAGES_EXIST"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInternal            = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrNotAuthorized, CodeNotAuthorized},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidState, CodeInvalidState},
	{ErrInsufficientBudget, CodeInsufficientBudget},
	{ErrTokenTransferFailed, CodeTokenTransferFailed},
	{ErrOpenPackagesExist, CodeOpenPackagesExist},
	{ErrInvalidInput, CodeInvalidInput},
}

// Code returns the stable code of err's kind, CodeInternal for anything
// else, or "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
