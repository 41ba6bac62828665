package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storefeedback/qrverify/internal/server/models"
)

func TestCombine(t *testing.T) {
	ok := Combine(
		models.TimeResult{Status: models.StatusWithinTolerance},
		models.AmountResult{Status: models.StatusWithinTolerance},
		models.PhoneResult{Status: models.StatusValid},
	)
	assert.True(t, ok.OverallValid)

	bad := Combine(
		models.TimeResult{Status: models.StatusWithinTolerance},
		models.AmountResult{Status: models.StatusTooHigh},
		models.PhoneResult{Status: models.StatusValid},
	)
	assert.False(t, bad.OverallValid)
	assert.Equal(t, models.StatusTooHigh, bad.Amount.Status)
}

func TestToleranceHints(t *testing.T) {
	h := ToleranceHints()
	assert.Equal(t, int64(120), h.TimeToleranceSeconds)
	assert.Equal(t, "2.00", h.AmountTolerance)
	assert.Len(t, h.MobilePrefixes, 5)
}
