package commands

import (
	"regexp"
	"strings"
	"unicode"
)

// LeadCommand is the structured form of an owner "inject a lead" message.
type LeadCommand struct {
	CustomerName    string
	Phone           string
	ProductInterest string
}

const (
	defaultLeadName    = "Unknown"
	defaultLeadProduct = "General Inquiry"
)

var leadPhrases = []string{
	"lead inject",
	"inject lead",
	"add lead",
	"new lead",
	"customer name",
	"lead:",
}

// productKeywords drive the name-vs-product tie break. Ordered, first match wins.
var productKeywords = []string{
	"iphone", "macbook", "airpods", "ipad", "imac", "watch",
	"laptop", "mobile", "phone", "charger", "case",
}

// modelWords extend a detected product keyword into a multi-token product name.
var modelWords = map[string]struct{}{
	"pro": {}, "max": {}, "plus": {}, "mini": {}, "air": {}, "ultra": {}, "se": {},
}

var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {},
}

var leadPhoneRe = regexp.MustCompile(`[0-9]{10,12}`)

// ParseLeadCommand extracts a lead injection from owner free text.
//
// This is a best-effort heuristic parser: ambiguous input degrades to an
// "Unknown" name or "General Inquiry" product instead of failing, so callers
// must tolerate low-confidence output. The phone number is mandatory.
func ParseLeadCommand(text string) (*LeadCommand, bool) {
	lower := strings.ToLower(text)
	matched := false
	for _, phrase := range leadPhrases {
		if strings.Contains(lower, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}

	number := leadPhoneRe.FindString(text)
	if number == "" {
		return nil, false
	}

	rest := stripLeadPhrases(text)
	segments := splitOnPhone(rest, number)

	var name, product string
	switch len(segments) {
	case 2:
		if isProductSegment(segments[0]) {
			product, name = segments[0], segments[1]
		} else if isProductSegment(segments[1]) {
			product, name = segments[1], segments[0]
		} else {
			name, product = segments[0], segments[1]
		}
		if kw, rest, ok := splitOnKeyword(product); ok && rest != "" {
			// Product segment may still carry trailing name words.
			product = kw
			if name == "" {
				name = rest
			}
		}
	case 1:
		name, product = splitSingleSegment(segments[0])
	}

	return &LeadCommand{
		CustomerName:    normalizeName(name),
		Phone:           number,
		ProductInterest: normalizeProduct(product),
	}, true
}

func stripLeadPhrases(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range leadPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			text = text[:idx] + text[idx+len(phrase):]
			lower = strings.ToLower(text)
		}
	}
	return strings.TrimSpace(text)
}

// splitOnPhone splits the remaining text on the phone number, tolerating
// optional surrounding dashes, and keeps at most two non-empty segments.
func splitOnPhone(text, number string) []string {
	re := regexp.MustCompile(`\s*-?\s*` + regexp.QuoteMeta(number) + `\s*-?\s*`)
	parts := re.Split(text, 2)
	segments := make([]string, 0, 2)
	for _, p := range parts {
		p = strings.Trim(p, " \t-:,")
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func isProductSegment(segment string) bool {
	if strings.ContainsFunc(segment, unicode.IsDigit) {
		return true
	}
	lower := strings.ToLower(segment)
	for _, kw := range productKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// splitSingleSegment decides name vs product when only one free-text segment
// survives the phone split.
func splitSingleSegment(segment string) (name, product string) {
	if kw, leftover, ok := splitOnKeyword(segment); ok {
		return leftover, kw
	}

	word, rest, found := strings.Cut(strings.TrimSpace(segment), " ")
	if found && isProductSegment(rest) {
		return word, rest
	}
	return "", segment
}

// splitOnKeyword pulls a product run (keyword plus model tokens) out of a
// segment, returning the product, the leftover words, and whether a keyword
// was found at all.
func splitOnKeyword(segment string) (product, leftover string, ok bool) {
	tokens := strings.Fields(segment)
	start := -1
	for i, tok := range tokens {
		lower := strings.ToLower(strings.Trim(tok, ",.!"))
		for _, kw := range productKeywords {
			if lower == kw {
				start = i
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", "", false
	}

	end := start + 1
	for end < len(tokens) && isModelToken(tokens[end]) {
		end++
	}

	var rest []string
	rest = append(rest, tokens[:start]...)
	rest = append(rest, tokens[end:]...)
	return strings.Join(tokens[start:end], " "), strings.Join(rest, " "), true
}

func isModelToken(tok string) bool {
	tok = strings.ToLower(strings.Trim(tok, ",.!"))
	if tok == "" {
		return false
	}
	allDigits := true
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return true
	}
	_, ok := modelWords[tok]
	return ok
}

func normalizeName(name string) string {
	tokens := strings.Fields(name)
	for len(tokens) > 0 {
		lower := strings.ToLower(strings.TrimSuffix(tokens[0], "."))
		if _, ok := honorifics[lower]; ok {
			tokens = tokens[1:]
			continue
		}
		break
	}
	if len(tokens) == 0 {
		return defaultLeadName
	}
	first := strings.Trim(tokens[0], ",.!")
	if first == "" {
		return defaultLeadName
	}
	return strings.ToUpper(first[:1]) + strings.ToLower(first[1:])
}

func normalizeProduct(product string) string {
	tokens := strings.Fields(product)
	for len(tokens) > 0 {
		switch strings.ToLower(tokens[0]) {
		case "a", "an", "the":
			tokens = tokens[1:]
			continue
		}
		break
	}
	if len(tokens) == 0 {
		return defaultLeadProduct
	}
	return strings.Join(tokens, " ")
}
