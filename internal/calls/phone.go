package calls

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`[0-9]+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// ValidE164 reports whether the value is a plausible E.164 number.
func ValidE164(value string) bool {
	if !strings.HasPrefix(value, "+") {
		return false
	}
	digits := value[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return digits[0] != '0'
}

// MaskPhone hides all but the last four digits for logging.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
