package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Verification is the customer's claim about a purchase, checked against the
// store's expected transaction. One per session; never updated.
type Verification struct {
	ID                string
	SessionID         string
	StoreID           string
	TransactionTime   *time.Time
	TransactionAmount *decimal.Decimal
	PhoneRaw          string
	PhoneE164         string
	PhoneNational     string
	Status            SessionStatus
	Results           ValidationResults
	SubmittedAt       time.Time
}
