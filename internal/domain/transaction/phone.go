package transaction

import (
	"regexp"
	"strings"

	"github.com/starkville/storefront/internal/domain/errors"
)

var (
	// Safaricom subscriber ranges: 07XX XXX XXX and 01XX XXX XXX.
	localPhone         = regexp.MustCompile(`^0([17]\d{8})$`)
	internationalPhone = regexp.MustCompile(`^\+?254([17]\d{8})$`)
	phoneSeparators    = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// NormalizePhone converts a Kenyan mobile number to the 12-digit 2547XXXXXXXX
// (or 2541XXXXXXXX) form the gateway expects.
func NormalizePhone(raw string) (string, error) {
	phone := phoneSeparators.Replace(strings.TrimSpace(raw))
	if phone == "" {
		return "", errors.NewValidationError("phone", "is required")
	}

	if m := localPhone.FindStringSubmatch(phone); m != nil {
		return "254" + m[1], nil
	}
	if m := internationalPhone.FindStringSubmatch(phone); m != nil {
		return "254" + m[1], nil
	}

	return "", errors.NewValidationError("phone", "Phone must be 12 digits, e.g., 2547XXXXXXXX")
}
