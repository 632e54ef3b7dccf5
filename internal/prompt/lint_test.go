package prompt

import (
	"strings"
	"testing"
)

func TestLint(t *testing.T) {
	tests := []struct {
		name        string
		input       LintInput
		valid       bool
		empty       bool
		tooLarge    bool
		missingSlot bool
	}{
		{
			name:  "valid with placeholder",
			input: LintInput{Template: "Summarize {transcript}", MaxChars: 100},
			valid: true,
		},
		{
			name:        "valid without placeholder",
			input:       LintInput{Template: "Summarize this", MaxChars: 100},
			valid:       true,
			missingSlot: true,
		},
		{
			name:        "empty",
			input:       LintInput{Template: "  \n\t ", MaxChars: 100},
			empty:       true,
			missingSlot: true,
		},
		{
			name:     "too large",
			input:    LintInput{Template: strings.Repeat("a", 11) + Placeholder, MaxChars: 10},
			tooLarge: true,
		},
		{
			name:  "no limit",
			input: LintInput{Template: strings.Repeat("a", 100000) + Placeholder},
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lint(tt.input)
			if got.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.valid)
			}
			if got.Empty != tt.empty {
				t.Errorf("Empty = %v, want %v", got.Empty, tt.empty)
			}
			if got.TooLarge != tt.tooLarge {
				t.Errorf("TooLarge = %v, want %v", got.TooLarge, tt.tooLarge)
			}
			if got.MissingPlaceholder != tt.missingSlot {
				t.Errorf("MissingPlaceholder = %v, want %v", got.MissingPlaceholder, tt.missingSlot)
			}
		})
	}
}
