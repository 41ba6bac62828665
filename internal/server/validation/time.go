package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/storefeedback/qrverify/internal/server/models"
)

// TimeTolerance is the inclusive allowed distance between claimed and expected time.
const TimeTolerance = 120 * time.Second

// now is swapped in tests.
var now = time.Now

// TimePair is one input of the batch form.
type TimePair struct {
	Actual   time.Time
	Expected time.Time
}

// ValidateTime compares actual against expected (now when zero).
// |actual-expected| <= 120s is within tolerance; the boundary is inclusive.
func ValidateTime(actual, expected time.Time) models.TimeResult {
	if actual.IsZero() {
		return invalidTime("transaction time is required")
	}
	if expected.IsZero() {
		expected = now()
	}

	diff := actual.Sub(expected)
	start, end := TimeWindow(expected)
	res := models.TimeResult{
		Actual:            &actual,
		Expected:          &expected,
		DifferenceSeconds: int64(diff / time.Second),
		ToleranceSeconds:  int64(TimeTolerance / time.Second),
		WindowStart:       &start,
		WindowEnd:         &end,
	}

	switch {
	case diff < -TimeTolerance:
		res.Status = models.StatusTooEarly
		res.Message = fmt.Sprintf("transaction time is %s before the recorded purchase", (-diff).Round(time.Second))
	case diff > TimeTolerance:
		res.Status = models.StatusTooLate
		res.Message = fmt.Sprintf("transaction time is %s after the recorded purchase", diff.Round(time.Second))
	default:
		res.Status = models.StatusWithinTolerance
	}
	return res
}

// ValidateClockTime parses an HH:MM claim anchored to ref in loc and validates
// it against expected. Unparseable input yields invalid_format.
func ValidateClockTime(hhmm string, ref, expected time.Time, loc *time.Location) models.TimeResult {
	actual, err := ParseClockTime(hhmm, ref, loc)
	if err != nil {
		return invalidTime(err.Error())
	}
	return ValidateTime(actual, expected)
}

// ValidateTimes is the batch form of ValidateTime.
func ValidateTimes(pairs []TimePair) []models.TimeResult {
	out := make([]models.TimeResult, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ValidateTime(p.Actual, p.Expected))
	}
	return out
}

// TimeWindow returns the inclusive range of accepted times around expected.
func TimeWindow(expected time.Time) (time.Time, time.Time) {
	return expected.Add(-TimeTolerance), expected.Add(TimeTolerance)
}

// ParseClockTime turns "HH:MM" (also "H:MM" or "HH.MM") into a timestamp on
// ref's calendar day in loc. A result more than 12h away from ref is moved by a
// day, so 23:55 claimed at 00:03 means yesterday.
func ParseClockTime(hhmm string, ref time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(hhmm)
	sep := strings.IndexAny(raw, ":.")
	if sep <= 0 || sep > 2 || len(raw)-sep-1 != 2 {
		return time.Time{}, fmt.Errorf("transaction time %q must be in HH:MM format", hhmm)
	}
	hour, err := strconv.Atoi(raw[:sep])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("transaction time %q has an invalid hour", hhmm)
	}
	minute, err := strconv.Atoi(raw[sep+1:])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("transaction time %q has invalid minutes", hhmm)
	}

	local := ref.In(loc)
	t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	switch {
	case t.Sub(local) > 12*time.Hour:
		t = t.AddDate(0, 0, -1)
	case local.Sub(t) > 12*time.Hour:
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func invalidTime(msg string) models.TimeResult {
	return models.TimeResult{
		Status:           models.StatusInvalidFormat,
		ToleranceSeconds: int64(TimeTolerance / time.Second),
		Message:          msg,
	}
}
