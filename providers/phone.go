package providers

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhoneFormat is returned when a phone number cannot be reduced to 254XXXXXXXXX.
var ErrInvalidPhoneFormat = errors.New("invalid phone number format, use 254XXXXXXXXX")

var canonicalPhone = regexp.MustCompile(`^254\d{9}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "\t", "", "\n", "", "\r", "")

// NormalizePhone converts user-entered Kenyan numbers (0712..., +254712..., 254 712-...)
// into the canonical 254XXXXXXXXX form expected by M-Pesa.
func NormalizePhone(raw string) (string, error) {
	phone := phoneSeparators.Replace(strings.TrimSpace(raw))

	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "0") {
		phone = "254" + phone[1:]
	}

	if !canonicalPhone.MatchString(phone) {
		return "", ErrInvalidPhoneFormat
	}
	return phone, nil
}

// MaskPhone hides the middle digits of a phone number for logging.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:4] + strings.Repeat("*", len(phone)-8) + phone[len(phone)-4:]
}
