package prompt

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple lowercase", "Chief Complaint", "chief complaint"},
		{"trim whitespace", "  Summary  ", "summary"},
		{"collapse internal whitespace", "Follow-up    Plan", "follow-up plan"},
		{"tabs and newlines", "Chief\t\n  Complaint", "chief complaint"},
		{"empty string", "", ""},
		{"only whitespace", "   \t\n   ", ""},
		{"unicode characters", "  RÉSUMÉ   Clinique  ", "résumé clinique"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanName(t *testing.T) {
	if got := CleanName("  Chief   Complaint "); got != "Chief Complaint" {
		t.Errorf("CleanName() = %q, want %q", got, "Chief Complaint")
	}
}

func TestCountChars(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"hello", 5},
		{"日本語", 3},
		{"café", 4},
	}
	for _, tt := range tests {
		if got := CountChars(tt.input); got != tt.want {
			t.Errorf("CountChars(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"one", 2},
		{"one two three four five six seven eight nine ten", 13},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
