package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storefeedback/qrverify/internal/flagx"
	"github.com/storefeedback/qrverify/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for JSON/YAML decoding. Durations use
// timex.Duration so files may contain "15m" or integer nanoseconds.
// Zero values leave the corresponding Config field untouched.
type FileConfig struct {
	EndpointAddrHTTP              string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC              string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN                   string         `json:"database_dsn" yaml:"database_dsn"`
	SeedFile                      string         `json:"seed_file" yaml:"seed_file"`
	RedisURL                      string         `json:"redis_url" yaml:"redis_url"`
	SecretKey                     string         `json:"secret_key" yaml:"secret_key"`
	OperatorTokenValidityDuration timex.Duration `json:"operator_token_validity_duration" yaml:"operator_token_validity_duration"`
	SessionTTL                    timex.Duration `json:"session_ttl" yaml:"session_ttl"`
	QRMaxAge                      timex.Duration `json:"qr_max_age" yaml:"qr_max_age"`
	QRClockSkew                   timex.Duration `json:"qr_clock_skew" yaml:"qr_clock_skew"`
	ScanRateLimit                 int            `json:"scan_rate_limit" yaml:"scan_rate_limit"`
	SubmitRateLimit               int            `json:"submit_rate_limit" yaml:"submit_rate_limit"`
	RateLimitWindow               timex.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
	RiskWindow                    timex.Duration `json:"risk_window" yaml:"risk_window"`
	RiskWarnThreshold             float64        `json:"risk_warn_threshold" yaml:"risk_warn_threshold"`
	RiskBlockThreshold            float64        `json:"risk_block_threshold" yaml:"risk_block_threshold"`
	FraudLogTimeout               timex.Duration `json:"fraud_log_timeout" yaml:"fraud_log_timeout"`
	TransactionLookupWindow       timex.Duration `json:"transaction_lookup_window" yaml:"transaction_lookup_window"`
	Timezone                      string         `json:"timezone" yaml:"timezone"`
	SweepInterval                 timex.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	TrustedProxies                []string       `json:"trusted_proxies" yaml:"trusted_proxies"`
	KafkaBrokers                  []string       `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic                    string         `json:"kafka_topic" yaml:"kafka_topic"`
	S3RootUser                    string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword                string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                      string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                      string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint                string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3Prefix                      string         `json:"s3_prefix" yaml:"s3_prefix"`
	LogLevel                      string         `json:"log_level" yaml:"log_level"`
}

// parseFile loads the file named by -c/-config (if any) into config.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// An unreadable or malformed file panics, like a bad flag would.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, fc)
	default:
		err = json.Unmarshal(raw, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SeedFile, fc.SeedFile)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.SecretKey, fc.SecretKey)
	setDuration(&c.OperatorTokenValidityDuration, fc.OperatorTokenValidityDuration)
	setDuration(&c.SessionTTL, fc.SessionTTL)
	setDuration(&c.QRMaxAge, fc.QRMaxAge)
	setDuration(&c.QRClockSkew, fc.QRClockSkew)
	if fc.ScanRateLimit > 0 {
		c.ScanRateLimit = fc.ScanRateLimit
	}
	if fc.SubmitRateLimit > 0 {
		c.SubmitRateLimit = fc.SubmitRateLimit
	}
	setDuration(&c.RateLimitWindow, fc.RateLimitWindow)
	setDuration(&c.RiskWindow, fc.RiskWindow)
	if fc.RiskWarnThreshold > 0 {
		c.RiskWarnThreshold = fc.RiskWarnThreshold
	}
	if fc.RiskBlockThreshold > 0 {
		c.RiskBlockThreshold = fc.RiskBlockThreshold
	}
	setDuration(&c.FraudLogTimeout, fc.FraudLogTimeout)
	setDuration(&c.TransactionLookupWindow, fc.TransactionLookupWindow)
	setString(&c.Timezone, fc.Timezone)
	setDuration(&c.SweepInterval, fc.SweepInterval)
	if fc.TrustedProxies != nil {
		c.TrustedProxies = fc.TrustedProxies
	}
	if len(fc.KafkaBrokers) > 0 {
		c.KafkaBrokers = fc.KafkaBrokers
	}
	setString(&c.KafkaTopic, fc.KafkaTopic)
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.S3Prefix, fc.S3Prefix)
	setString(&c.LogLevel, fc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
