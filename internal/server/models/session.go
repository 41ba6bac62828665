// Package models defines the records the verification service persists and
// the value types passed between its components.
package models

import "time"

// SessionStatus is the lifecycle state of a verification session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// Terminal reports whether no further transition is permitted out of s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionExpired
}

// Session is a time-bounded verification session opened by a QR scan.
// ExpiresAt is fixed at creation; Status only moves pending -> terminal.
type Session struct {
	ID           string
	StoreID      string
	QRVersion    int
	Token        string
	Status       SessionStatus
	FraudWarning bool
	RiskScore    float64
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the session deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
