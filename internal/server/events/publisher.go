// Package events hands finalized verifications to downstream consumers such
// as the reward processor, over Kafka and as archived S3 objects.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// VerificationFinalized is emitted once a verification commits with an overall valid verdict.
type VerificationFinalized struct {
	VerificationID    string    `json:"verification_id"`
	SessionID         string    `json:"session_id"`
	StoreID           string    `json:"store_id"`
	PhoneE164         string    `json:"phone_e164"`
	TransactionTime   time.Time `json:"transaction_time"`
	TransactionAmount string    `json:"transaction_amount"`
	FraudWarning      bool      `json:"fraud_warning"`
	RiskScore         float64   `json:"risk_score"`
	FinalizedAt       time.Time `json:"finalized_at"`
}

func (e VerificationFinalized) encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, ev VerificationFinalized) error
	Close() error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev VerificationFinalized) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, VerificationFinalized) error { return nil }
func (Nop) Close() error                                         { return nil }
