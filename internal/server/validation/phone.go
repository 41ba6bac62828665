package validation

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/storefeedback/qrverify/internal/server/models"
)

const (
	homeRegion      = "SE"
	homeCountryCode = 46
	mobileNSNLength = 9
)

var (
	mobilePrefixes = []string{"70", "72", "73", "76", "79"}

	phoneShape     = regexp.MustCompile(`^\+?[0-9]{4,15}$`)
	phoneSeparator = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "/", "", "\u00a0", "")
)

// ValidatePhone accepts Swedish mobile numbers in national ("070-123 45 67")
// or international ("+46 70 123 45 67", "0046...") form.
func ValidatePhone(raw string) models.PhoneResult {
	cleaned := phoneSeparator.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	if !phoneShape.MatchString(cleaned) {
		return models.PhoneResult{Status: models.StatusInvalidFormat, Message: "phone number contains invalid characters or has the wrong length"}
	}

	num, err := phonenumbers.Parse(cleaned, homeRegion)
	if err != nil {
		return models.PhoneResult{Status: models.StatusInvalidFormat, Message: "phone number could not be parsed"}
	}
	if num.GetCountryCode() != homeCountryCode {
		return models.PhoneResult{Status: models.StatusNotSwedish, Message: "only Swedish phone numbers are accepted"}
	}

	nsn := phonenumbers.GetNationalSignificantNumber(num)
	if len(nsn) != mobileNSNLength || !hasMobilePrefix(nsn) {
		return models.PhoneResult{Status: models.StatusNotMobile, Message: "phone number must be a Swedish mobile number"}
	}

	return models.PhoneResult{
		Status:   models.StatusValid,
		E164:     phonenumbers.Format(num, phonenumbers.E164),
		National: phonenumbers.Format(num, phonenumbers.NATIONAL),
	}
}

// ValidatePhones is the batch form of ValidatePhone.
func ValidatePhones(raws []string) []models.PhoneResult {
	out := make([]models.PhoneResult, 0, len(raws))
	for _, r := range raws {
		out = append(out, ValidatePhone(r))
	}
	return out
}

// MobilePrefixes lists the accepted mobile prefixes in national form.
func MobilePrefixes() []string {
	out := make([]string, len(mobilePrefixes))
	for i, p := range mobilePrefixes {
		out[i] = "0" + p
	}
	return out
}

func hasMobilePrefix(nsn string) bool {
	for _, p := range mobilePrefixes {
		if strings.HasPrefix(nsn, p) {
			return true
		}
	}
	return false
}
