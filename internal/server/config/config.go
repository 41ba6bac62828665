// Package config handles configuration for the verification server,
// including defaults, a JSON or YAML file overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the verification server.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses of the public HTTP API and the gRPC health probe.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory gateway, seeded from SeedFile.
//   - RedisURL: shared rate-limit store. Empty keeps counters in process (single instance only).
//   - SecretKey: HMAC secret for operator JWTs (HS256). Do not use test defaults in prod.
//   - SessionTTL: lifetime of a verification session, fixed at creation.
//   - QRMaxAge / QRClockSkew: accepted age of the QR "t" parameter and tolerated future drift.
//   - ScanRateLimit / SubmitRateLimit / RateLimitWindow: sliding-window attempt limits per store and origin.
//   - RiskWindow / RiskWarnThreshold / RiskBlockThreshold: risk scoring horizon and cut-offs.
//   - TransactionLookupWindow: how far from the claimed time a POS transaction may be looked up.
//   - Timezone: store-local zone used to anchor HH:MM claims.
//   - TrustedProxies: peers (IPs or CIDRs) allowed to relay the client origin via X-Forwarded-For or the scan body.
//   - KafkaBrokers / KafkaTopic, S3*: destinations for finalized verification records (optional).
type Config struct {
	EndpointAddrHTTP              string
	EndpointAddrGRPC              string
	DatabaseDSN                   string
	SeedFile                      string
	RedisURL                      string
	SecretKey                     string
	OperatorTokenValidityDuration time.Duration
	SessionTTL                    time.Duration
	QRMaxAge                      time.Duration
	QRClockSkew                   time.Duration
	ScanRateLimit                 int
	SubmitRateLimit               int
	RateLimitWindow               time.Duration
	RiskWindow                    time.Duration
	RiskWarnThreshold             float64
	RiskBlockThreshold            float64
	FraudLogTimeout               time.Duration
	TransactionLookupWindow       time.Duration
	Timezone                      string
	SweepInterval                 time.Duration
	TrustedProxies                []string
	KafkaBrokers                  []string
	KafkaTopic                    string
	S3RootUser                    string
	S3RootPassword                string
	S3Bucket                      string
	S3Region                      string
	S3BaseEndpoint                string
	S3Prefix                      string
	LogLevel                      string
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey is insecure for production and must be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.SeedFile = ""
	c.RedisURL = ""
	c.SecretKey = "secretKey"
	c.OperatorTokenValidityDuration = 15 * time.Minute
	c.SessionTTL = 15 * time.Minute
	c.QRMaxAge = 24 * time.Hour
	c.QRClockSkew = 5 * time.Minute
	c.ScanRateLimit = 10
	c.SubmitRateLimit = 5
	c.RateLimitWindow = 15 * time.Minute
	c.RiskWindow = time.Hour
	c.RiskWarnThreshold = 0.5
	c.RiskBlockThreshold = 0.9
	c.FraudLogTimeout = 5 * time.Second
	c.TransactionLookupWindow = 30 * time.Minute
	c.Timezone = "Europe/Stockholm"
	c.SweepInterval = 5 * time.Minute
	c.TrustedProxies = []string{"127.0.0.1", "::1"}
	c.KafkaBrokers = nil
	c.KafkaTopic = "verification.finalized"
	c.S3RootUser = ""
	c.S3RootPassword = ""
	c.S3Bucket = ""
	c.S3Region = "eu-north-1"
	c.S3BaseEndpoint = ""
	c.S3Prefix = "verifications"
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON/YAML file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}

// Location resolves Timezone, falling back to UTC when the zone is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
