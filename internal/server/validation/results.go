package validation

import "github.com/storefeedback/qrverify/internal/server/models"

// Combine aggregates the three verdicts. The claim is valid only when all of them accept.
func Combine(t models.TimeResult, a models.AmountResult, p models.PhoneResult) models.ValidationResults {
	return models.ValidationResults{
		Time:         t,
		Amount:       a,
		Phone:        p,
		OverallValid: t.Status.OK() && a.Status.OK() && p.Status.OK(),
	}
}

// Hints describes the accepted tolerances to clients before they submit.
type Hints struct {
	TimeToleranceSeconds int64    `json:"time_tolerance_seconds"`
	AmountTolerance      string   `json:"amount_tolerance"`
	MobilePrefixes       []string `json:"mobile_prefixes"`
}

// ToleranceHints returns the current tolerance configuration.
func ToleranceHints() Hints {
	return Hints{
		TimeToleranceSeconds: int64(TimeTolerance.Seconds()),
		AmountTolerance:      AmountTolerance.StringFixed(2),
		MobilePrefixes:       MobilePrefixes(),
	}
}
