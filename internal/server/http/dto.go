package http

import (
	"encoding/json"
	"time"

	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/validation"
)

type scanRequest struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type scanResponse struct {
	Success      bool             `json:"success"`
	SessionToken string           `json:"session_token"`
	StoreInfo    models.StoreInfo `json:"store_info"`
	FraudWarning bool             `json:"fraud_warning"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// submitRequest keeps the amount raw so both JSON numbers and strings such
// as "126,50 kr" reach the amount parser.
type submitRequest struct {
	TransactionTime   string          `json:"transaction_time"`
	TransactionAmount json.RawMessage `json:"transaction_amount"`
	PhoneNumber       string          `json:"phone_number"`
}

type submitResponse struct {
	Success           bool                     `json:"success"`
	VerificationID    string                   `json:"verification_id,omitempty"`
	Status            models.SessionStatus     `json:"status"`
	ValidationResults models.ValidationResults `json:"validation_results"`
	NextSteps         string                   `json:"next_steps"`
}

type sessionResponse struct {
	Success        bool                 `json:"success"`
	SessionID      string               `json:"session_id"`
	StoreInfo      models.StoreInfo     `json:"store_info"`
	Status         models.SessionStatus `json:"status"`
	QRVersion      int                  `json:"qr_version"`
	FraudWarning   bool                 `json:"fraud_warning"`
	CreatedAt      time.Time            `json:"created_at"`
	ExpiresAt      time.Time            `json:"expires_at"`
	ToleranceHints validation.Hints     `json:"tolerance_hints"`
}

type statusResponse struct {
	Success           bool                     `json:"success"`
	VerificationID    string                   `json:"verification_id"`
	SessionID         string                   `json:"session_id"`
	StoreID           string                   `json:"store_id"`
	Status            models.SessionStatus     `json:"status"`
	ValidationResults models.ValidationResults `json:"validation_results"`
	SubmittedAt       time.Time                `json:"submitted_at"`
}

type cleanupResponse struct {
	Success      bool  `json:"success"`
	ExpiredCount int64 `json:"expired_count"`
}
