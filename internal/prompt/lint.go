package prompt

import "strings"

// LintInput contains parameters for linting a template.
type LintInput struct {
	Template string
	MaxChars int
}

// LintResult contains the results of linting a template.
type LintResult struct {
	Valid       bool
	Empty       bool
	TooLarge    bool
	ActualChars int
	MaxChars    int

	// MissingPlaceholder is advisory; Render appends the transcript instead
	MissingPlaceholder bool
}

// Lint validates a template before it is added or updated.
func Lint(input LintInput) *LintResult {
	result := &LintResult{
		Valid:       true,
		ActualChars: CountChars(input.Template),
		MaxChars:    input.MaxChars,
	}

	if Normalize(input.Template) == "" {
		result.Empty = true
		result.Valid = false
	}

	if input.MaxChars > 0 && result.ActualChars > input.MaxChars {
		result.TooLarge = true
		result.Valid = false
	}

	result.MissingPlaceholder = !strings.Contains(input.Template, Placeholder)

	return result
}
