package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/config"
	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/ratelimit"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
)

// RateLimitStatus reports the sliding-window state for the attempt's key.
type RateLimitStatus struct {
	Blocked    bool          `json:"blocked"`
	Attempts   int           `json:"attempts"`
	Limit      int           `json:"limit"`
	RetryAfter time.Duration `json:"-"`
}

// FraudVerdict is the gate decision for one scan or submission attempt.
// Allowed is false either because the rate limit tripped (RateLimit.Blocked)
// or because the risk score reached the block threshold.
type FraudVerdict struct {
	Allowed      bool
	FraudWarning bool
	RateLimit    RateLimitStatus
	Risk         RiskAssessment
}

// Attempt describes what is being gated.
type Attempt struct {
	StoreID      string
	Kind         models.AttemptKind
	Client       ClientInfo
	SessionToken string
}

// FraudDetector rate-limits and risk-scores attempts and appends each one to
// the fraud log in the background.
type FraudDetector struct {
	repos   repomanager.Repositories
	limiter ratelimit.Limiter
	log     logging.Logger

	scanLimit      int
	submitLimit    int
	window         time.Duration
	riskWindow     time.Duration
	warnThreshold  float64
	blockThreshold float64
	logTimeout     time.Duration

	wg  sync.WaitGroup
	now func() time.Time
}

func NewFraudDetector(repos repomanager.Repositories, limiter ratelimit.Limiter, cfg *config.Config, log logging.Logger) *FraudDetector {
	return &FraudDetector{
		repos:          repos,
		limiter:        limiter,
		log:            log.With("module", "fraud"),
		scanLimit:      cfg.ScanRateLimit,
		submitLimit:    cfg.SubmitRateLimit,
		window:         cfg.RateLimitWindow,
		riskWindow:     cfg.RiskWindow,
		warnThreshold:  cfg.RiskWarnThreshold,
		blockThreshold: cfg.RiskBlockThreshold,
		logTimeout:     cfg.FraudLogTimeout,
		now:            time.Now,
	}
}

// CheckAndLog evaluates an attempt. It never fails: limiter and fraud-log
// outages are logged and the attempt is let through.
func (d *FraudDetector) CheckAndLog(ctx context.Context, a Attempt) FraudVerdict {
	now := d.now()

	rl := d.checkRate(ctx, a)
	if rl.Blocked {
		v := FraudVerdict{RateLimit: rl, Risk: RiskAssessment{Level: RiskHigh, Factors: []string{FactorRateLimitExceeded}}}
		d.record(ctx, a, v, now)
		d.log.Warn(ctx, "attempt rate limited",
			"store_id", a.StoreID, "ip", a.Client.IPAddress, "kind", a.Kind, "attempts", rl.Attempts)
		return v
	}

	stats, err := d.repos.FraudLogs().Stats(ctx, a.StoreID, a.Client.IPAddress, a.Client.UserAgent, now.Add(-d.riskWindow))
	if err != nil {
		d.log.Warn(ctx, "risk stats unavailable, scoring without history", "store_id", a.StoreID, "error", err)
		stats = models.AccessStats{}
	}

	risk := ScoreRisk(stats, a.Client)
	v := FraudVerdict{
		Allowed:      risk.Score < d.blockThreshold,
		FraudWarning: risk.Score >= d.warnThreshold,
		RateLimit:    rl,
		Risk:         risk,
	}
	d.record(ctx, a, v, now)

	if !v.Allowed {
		d.log.Warn(ctx, "attempt blocked by risk score",
			"store_id", a.StoreID, "ip", a.Client.IPAddress, "kind", a.Kind, "score", risk.Score, "factors", risk.Factors)
	}
	return v
}

func (d *FraudDetector) checkRate(ctx context.Context, a Attempt) RateLimitStatus {
	limit, key := d.scanLimit, ratelimit.ScanKey(a.StoreID, a.Client.IPAddress)
	if a.Kind == models.AttemptSubmit {
		limit, key = d.submitLimit, ratelimit.SubmitKey(a.StoreID, a.Client.IPAddress)
	}

	dec, err := d.limiter.Allow(ctx, key, limit, d.window)
	if err != nil {
		d.log.Warn(ctx, "rate limiter unavailable, allowing attempt", "key", key, "error", err)
		return RateLimitStatus{Limit: limit}
	}
	return RateLimitStatus{Blocked: !dec.Allowed, Attempts: dec.Count, Limit: limit, RetryAfter: dec.RetryAfter}
}

// record appends the fraud-log entry on a tracked goroutine detached from the
// request's cancellation.
func (d *FraudDetector) record(ctx context.Context, a Attempt, v FraudVerdict, at time.Time) {
	entry := &models.FraudLog{
		ID:              uuid.NewString(),
		StoreID:         a.StoreID,
		IPAddress:       a.Client.IPAddress,
		UserAgent:       a.Client.UserAgent,
		SessionToken:    a.SessionToken,
		Kind:            a.Kind,
		RiskScore:       v.Risk.Score,
		RiskFactors:     v.Risk.Factors,
		Blocked:         !v.Allowed,
		AccessTimestamp: at,
	}

	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(bg, d.logTimeout)
		defer cancel()
		if err := d.repos.FraudLogs().Append(ctx, entry); err != nil {
			d.log.Warn(ctx, "fraud log append failed", "store_id", entry.StoreID, "error", err)
		}
	}()
}

// Close waits for in-flight fraud-log writes.
func (d *FraudDetector) Close() {
	d.wg.Wait()
}
