package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternalError = errors.New("internal error")
)

// Validation errors. All of them wrap ErrInvalidInput.
var (
	ErrInvalidDateRange    = fmt.Errorf("%w: invalid date range", ErrInvalidInput)
	ErrInvalidScenarioType = fmt.Errorf("%w: unknown scenario type", ErrInvalidInput)
	ErrUnsupportedCurrency = fmt.Errorf("%w: unsupported currency code", ErrInvalidInput)
	ErrInvalidFiscalYear   = fmt.Errorf("%w: fiscal year out of range", ErrInvalidInput)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be non-negative", ErrInvalidInput)
	ErrInvalidPageSize     = fmt.Errorf("%w: take must be between 1 and %d", ErrInvalidInput, MaxSummaryTake)
	ErrDescriptionTooLong  = fmt.Errorf("%w: description exceeds maximum length", ErrInvalidInput)
	ErrInvalidYearFilter   = fmt.Errorf("%w: fromYear must not be after toYear", ErrInvalidInput)
)

// Scenario errors
var (
	ErrScenarioNotFound     = fmt.Errorf("%w: budget scenario", ErrNotFound)
	ErrTemplateNotFound     = fmt.Errorf("%w: prior-year budget template", ErrNotFound)
	ErrDuplicateScenario    = fmt.Errorf("%w: budget scenario for fiscal year", ErrAlreadyExists)
	ErrScenarioCreateFailed = errors.New("failed to create budget scenario")
	ErrDetailsCreateFailed  = errors.New("failed to create budget detail entries")
)

// ErrConversion is returned when an amount cannot be converted between two currencies.
var ErrConversion = errors.New("currency conversion failed")

// UnsupportedCurrencyPairError reports a conversion the rate table cannot serve.
type UnsupportedCurrencyPairError struct {
	From string
	To   string
}

func (e UnsupportedCurrencyPairError) Error() string {
	return fmt.Sprintf("currency conversion failed: unsupported pair %s -> %s", e.From, e.To)
}

// Unwrap lets errors.Is match ErrConversion.
func (e UnsupportedCurrencyPairError) Unwrap() error {
	return ErrConversion
}

// Validation constants
const (
	MaxDescriptionLength = 255
	MinFiscalYear        = 2000
	MaxFiscalYear        = 2100
)
