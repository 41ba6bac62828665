package services

import (
	"math"
	"net/netip"
	"regexp"
	"strings"

	"github.com/storefeedback/qrverify/internal/server/models"
)

// RiskLevel buckets a risk score for display.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	FactorHighRequestDensity = "high_request_density"
	FactorUserAgentRotation  = "user_agent_rotation"
	FactorUserAgentReuse     = "user_agent_reuse"
	FactorMissingUserAgent   = "missing_user_agent"
	FactorAutomatedClient    = "automated_client"
	FactorInvalidIP          = "invalid_ip"
	FactorRateLimitExceeded  = "rate_limit_exceeded"
)

var automatedAgent = regexp.MustCompile(`(?i)(bot\b|bot/|crawler|spider|scraper|curl/|wget/|python-requests|python-urllib|aiohttp|httpclient|okhttp|go-http-client|java/|libwww|headless|phantomjs|selenium|puppeteer|playwright)`)

// RiskAssessment is the heuristic verdict for one attempt.
type RiskAssessment struct {
	Score   float64   `json:"risk_score"`
	Level   RiskLevel `json:"risk_level"`
	Factors []string  `json:"risk_factors"`
}

// ScoreRisk combines recent access density with request fingerprint checks.
// Factor weights add up and the score is capped at 1.
func ScoreRisk(st models.AccessStats, client ClientInfo) RiskAssessment {
	var (
		score   float64
		factors []string
	)
	add := func(name string, weight float64) {
		score += weight
		factors = append(factors, name)
	}

	switch {
	case st.OriginAttempts >= 10:
		add(FactorHighRequestDensity, 0.5)
	case st.OriginAttempts >= 5:
		add(FactorHighRequestDensity, 0.3)
	}
	if st.OriginUserAgents >= 3 {
		add(FactorUserAgentRotation, 0.2)
	}
	if st.UserAgentOrigins >= 5 {
		add(FactorUserAgentReuse, 0.2)
	}

	ua := strings.TrimSpace(client.UserAgent)
	if ua == "" {
		add(FactorMissingUserAgent, 0.3)
	} else if automatedAgent.MatchString(ua) {
		add(FactorAutomatedClient, 0.4)
	}
	if _, err := netip.ParseAddr(client.IPAddress); err != nil {
		add(FactorInvalidIP, 0.2)
	}

	score = math.Round(math.Min(score, 1)*100) / 100
	return RiskAssessment{Score: score, Level: levelFor(score), Factors: factors}
}

func levelFor(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}
