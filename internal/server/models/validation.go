package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValidationStatus is the verdict of a single tolerance validator.
type ValidationStatus string

const (
	StatusWithinTolerance ValidationStatus = "within_tolerance"
	StatusValid           ValidationStatus = "valid"
	StatusTooEarly        ValidationStatus = "too_early"
	StatusTooLate         ValidationStatus = "too_late"
	StatusTooLow          ValidationStatus = "too_low"
	StatusTooHigh         ValidationStatus = "too_high"
	StatusInvalidFormat   ValidationStatus = "invalid_format"
	StatusNotSwedish      ValidationStatus = "not_swedish"
	StatusNotMobile       ValidationStatus = "not_mobile"
)

// OK reports whether the status is an accepting verdict.
func (s ValidationStatus) OK() bool {
	return s == StatusWithinTolerance || s == StatusValid
}

// TimeResult is the verdict of the time validator.
type TimeResult struct {
	Status            ValidationStatus `json:"status"`
	Actual            *time.Time       `json:"actual,omitempty"`
	Expected          *time.Time       `json:"expected,omitempty"`
	DifferenceSeconds int64            `json:"difference_seconds"`
	ToleranceSeconds  int64            `json:"tolerance_seconds"`
	WindowStart       *time.Time       `json:"window_start,omitempty"`
	WindowEnd         *time.Time       `json:"window_end,omitempty"`
	Message           string           `json:"message,omitempty"`
}

// AmountResult is the verdict of the amount validator. Amounts are rounded to 2 decimals.
type AmountResult struct {
	Status     ValidationStatus `json:"status"`
	Actual     *decimal.Decimal `json:"actual,omitempty"`
	Expected   *decimal.Decimal `json:"expected,omitempty"`
	Difference decimal.Decimal  `json:"difference"`
	Tolerance  decimal.Decimal  `json:"tolerance"`
	WindowMin  *decimal.Decimal `json:"window_min,omitempty"`
	WindowMax  *decimal.Decimal `json:"window_max,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// PhoneResult is the verdict of the phone validator.
type PhoneResult struct {
	Status   ValidationStatus `json:"status"`
	E164     string           `json:"e164,omitempty"`
	National string           `json:"national,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// ValidationResults aggregates the three validator verdicts of a submission.
type ValidationResults struct {
	Time         TimeResult   `json:"time_validation"`
	Amount       AmountResult `json:"amount_validation"`
	Phone        PhoneResult  `json:"phone_validation"`
	OverallValid bool         `json:"overall_valid"`
}
