package models

import "time"

// AttemptKind distinguishes the two gated entry points.
type AttemptKind string

const (
	AttemptScan   AttemptKind = "scan"
	AttemptSubmit AttemptKind = "submit"
)

// FraudLog is an append-only record of one scan or submission attempt.
type FraudLog struct {
	ID              string
	StoreID         string
	IPAddress       string
	UserAgent       string
	SessionToken    string
	Kind            AttemptKind
	RiskScore       float64
	RiskFactors     []string
	Blocked         bool
	AccessTimestamp time.Time
}

// AccessStats summarises recent fraud-log density used by risk scoring.
type AccessStats struct {
	// OriginAttempts counts attempts from the same store and IP.
	OriginAttempts int
	// OriginUserAgents counts distinct user agents seen from that origin.
	OriginUserAgents int
	// UserAgentOrigins counts distinct IPs at the store presenting the same user agent.
	UserAgentOrigins int
}
