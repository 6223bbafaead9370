package phone

import "strings"

// matchKeyLen is the suffix length used for fuzzy matching across inconsistently
// formatted stored numbers. Safe only under a single-country deployment.
const matchKeyLen = 10

// Number holds the canonical and display forms of a phone number.
type Number struct {
	// Clean is the canonical digit string including the country code.
	Clean string
	// Formatted is the human-readable, plus-prefixed display form.
	Formatted string
}

// Normalizer canonicalizes arbitrary phone strings for a single country code.
type Normalizer struct {
	countryCode string
}

// NewNormalizer returns a normalizer that assumes the given country code.
func NewNormalizer(countryCode string) *Normalizer {
	countryCode = sanitizeDigits(countryCode)
	if countryCode == "" {
		countryCode = "91"
	}
	return &Normalizer{countryCode: countryCode}
}

// Normalize canonicalizes an arbitrary phone string.
//
// Digits longer than 12 keep only their last 10 and gain the country code;
// exactly 10 digits gain the country code; anything else is assumed to carry
// the country code already.
func (n *Normalizer) Normalize(raw string) Number {
	digits := sanitizeDigits(raw)
	if digits == "" {
		return Number{}
	}

	var clean string
	switch {
	case len(digits) > 12:
		clean = n.countryCode + digits[len(digits)-matchKeyLen:]
	case len(digits) == matchKeyLen:
		clean = n.countryCode + digits
	default:
		clean = digits
	}

	return Number{Clean: clean, Formatted: n.format(clean)}
}

// MatchKey returns the last-10-digit lookup key for a phone string.
// Stored records are matched by this suffix to tolerate historical formats.
func (n *Normalizer) MatchKey(raw string) string {
	clean := n.Normalize(raw).Clean
	return MatchKey(clean)
}

// MatchKey returns the last-10-digit suffix of an already-canonical number.
func MatchKey(clean string) string {
	clean = sanitizeDigits(clean)
	if len(clean) <= matchKeyLen {
		return clean
	}
	return clean[len(clean)-matchKeyLen:]
}

func (n *Normalizer) format(clean string) string {
	if strings.HasPrefix(clean, n.countryCode) && len(clean) == len(n.countryCode)+matchKeyLen {
		local := clean[len(n.countryCode):]
		return "+" + n.countryCode + " " + local[:5] + " " + local[5:]
	}
	return "+" + clean
}

func sanitizeDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
