package phone

import "testing"

func TestNormalize(t *testing.T) {
	n := NewNormalizer("91")

	tests := []struct {
		name          string
		raw           string
		wantClean     string
		wantFormatted string
	}{
		{"bare ten digits", "9969528677", "919969528677", "+91 99695 28677"},
		{"formatted with punctuation", "+91-99695-28677", "919969528677", "+91 99695 28677"},
		{"whatsapp jid style", "919969528677@c.us", "919969528677", "+91 99695 28677"},
		{"overlong keeps last ten", "0091 99695 28677", "919969528677", "+91 99695 28677"},
		{"eleven digits passes through", "19969528677", "19969528677", "+19969528677"},
		{"empty", "", "", ""},
		{"no digits", "abc", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw)
			if got.Clean != tt.wantClean {
				t.Errorf("Clean = %q, want %q", got.Clean, tt.wantClean)
			}
			if got.Formatted != tt.wantFormatted {
				t.Errorf("Formatted = %q, want %q", got.Formatted, tt.wantFormatted)
			}
		})
	}
}

func TestMatchKey(t *testing.T) {
	n := NewNormalizer("91")

	// Same underlying subscriber number must map to the same key regardless of
	// input format.
	inputs := []string{"9969528677", "+91 99695 28677", "919969528677", "0091-9969528677"}
	for _, in := range inputs {
		if got := n.MatchKey(in); got != "9969528677" {
			t.Errorf("MatchKey(%q) = %q, want 9969528677", in, got)
		}
	}

	if got := MatchKey("12345"); got != "12345" {
		t.Errorf("MatchKey short = %q, want 12345", got)
	}
}
