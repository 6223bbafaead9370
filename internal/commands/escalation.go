package commands

import (
	"regexp"
	"strings"
)

// escalationCodeRe matches a short alphanumeric reference code (e.g. "ESC01")
// at the start of an owner reply, optionally followed by ":" or whitespace.
var escalationCodeRe = regexp.MustCompile(`(?is)^\s*([a-z]{2,4}[0-9]{2,})(?:\s*:\s*|\s+|$)(.*)$`)

// ParseEscalationCode extracts a leading escalation code from an owner reply.
//
// Returns the normalized uppercase code and the remaining text. When no code
// is present it returns ("", text) unchanged; absence means the reply should
// be treated as free text, not an error.
func ParseEscalationCode(text string) (code, remainder string) {
	m := escalationCodeRe.FindStringSubmatch(text)
	if m == nil {
		return "", text
	}
	return strings.ToUpper(m[1]), strings.TrimSpace(m[2])
}
