package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/storefeedback/qrverify/internal/server/models"
)

var (
	// AmountTolerance is the inclusive allowed distance in currency units.
	AmountTolerance = decimal.RequireFromString("2.00")
	// MinAmount and MaxAmount bound any accepted amount.
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.RequireFromString("999999.99")

	errEmptyAmount = errors.New("amount is required")
)

// currency markers stripped from loosely formatted input, longest first.
var currencyMarkers = []string{"sek", "kr.", "kr", ":-", ",-", ".-"}

// AmountPair is one input of the batch form.
type AmountPair struct {
	Actual   any
	Expected any
}

// ValidateAmount compares actual against expected after rounding both to two
// decimals. Inputs may be numbers, decimals or loosely formatted strings such
// as "125,50 kr".
func ValidateAmount(actual, expected any) models.AmountResult {
	a, err := ParseAmount(actual)
	if err != nil {
		return invalidAmount(fmt.Sprintf("transaction amount: %v", err))
	}
	e, err := ParseAmount(expected)
	if err != nil {
		return invalidAmount(fmt.Sprintf("expected amount: %v", err))
	}
	if msg, ok := inBounds(a); !ok {
		return invalidAmount("transaction amount " + msg)
	}
	if msg, ok := inBounds(e); !ok {
		return invalidAmount("expected amount " + msg)
	}

	diff := a.Sub(e)
	lo, hi := AmountWindow(e)
	res := models.AmountResult{
		Actual:     &a,
		Expected:   &e,
		Difference: diff,
		Tolerance:  AmountTolerance,
		WindowMin:  &lo,
		WindowMax:  &hi,
	}

	switch {
	case diff.Abs().LessThanOrEqual(AmountTolerance):
		res.Status = models.StatusWithinTolerance
	case diff.IsNegative():
		res.Status = models.StatusTooLow
		res.Message = fmt.Sprintf("amount is %s below the recorded purchase", diff.Abs().StringFixed(2))
	default:
		res.Status = models.StatusTooHigh
		res.Message = fmt.Sprintf("amount is %s above the recorded purchase", diff.StringFixed(2))
	}
	return res
}

// ValidateAmounts is the batch form of ValidateAmount.
func ValidateAmounts(pairs []AmountPair) []models.AmountResult {
	out := make([]models.AmountResult, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, ValidateAmount(p.Actual, p.Expected))
	}
	return out
}

// AmountWindow returns the inclusive accepted range around expected,
// clamped to the accepted amount bounds.
func AmountWindow(expected decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	e := expected.Round(2)
	lo := decimal.Max(e.Sub(AmountTolerance), MinAmount)
	hi := decimal.Min(e.Add(AmountTolerance), MaxAmount)
	return lo, hi
}

// ParseAmount converts v into a decimal rounded half away from zero to two places.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case nil:
		return decimal.Zero, errEmptyAmount
	case decimal.Decimal:
		return value.Round(2), nil
	case *decimal.Decimal:
		if value == nil {
			return decimal.Zero, errEmptyAmount
		}
		return value.Round(2), nil
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return decimal.Zero, fmt.Errorf("%v is not a number", value)
		}
		return decimal.NewFromFloat(value).Round(2), nil
	case float32:
		return ParseAmount(float64(value))
	case int:
		return decimal.NewFromInt(int64(value)), nil
	case int64:
		return decimal.NewFromInt(value), nil
	case json.Number:
		return parseAmountString(value.String())
	case string:
		return parseAmountString(value)
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}

func parseAmountString(raw string) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, raw)
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}

	for _, m := range currencyMarkers {
		s = strings.TrimSuffix(s, m)
		s = strings.TrimPrefix(s, m)
	}

	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != '-' && r != '+' {
			return decimal.Zero, fmt.Errorf("%q is not a valid amount", raw)
		}
	}

	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a valid amount", raw)
	}
	return d.Round(2), nil
}

// normalizeSeparators keeps the last '.' or ',' as the decimal point and drops
// the others as thousands separators. A lone repeated separator is treated as
// grouping only.
func normalizeSeparators(s string) string {
	last := strings.LastIndexAny(s, ".,")
	if last < 0 {
		return s
	}
	if strings.Count(s, string(s[last])) > 1 && !strings.ContainsAny(s, otherSep(s[last])) {
		return strings.NewReplacer(".", "", ",", "").Replace(s)
	}
	intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:last])
	return intPart + "." + s[last+1:]
}

func otherSep(c byte) string {
	if c == '.' {
		return ","
	}
	return "."
}

func inBounds(d decimal.Decimal) (string, bool) {
	if d.LessThan(MinAmount) {
		return "must be at least " + MinAmount.StringFixed(2), false
	}
	if d.GreaterThan(MaxAmount) {
		return "must not exceed " + MaxAmount.StringFixed(2), false
	}
	return "", true
}

func invalidAmount(msg string) models.AmountResult {
	return models.AmountResult{
		Status:    models.StatusInvalidFormat,
		Tolerance: AmountTolerance,
		Message:   msg,
	}
}
