package prompt

import "strings"

// Render substitutes transcript for every Placeholder in template.
// A template without the placeholder gets the transcript appended after a
// blank line, so the model always sees it.
func Render(template, transcript string) string {
	if strings.Contains(template, Placeholder) {
		return strings.ReplaceAll(template, Placeholder, transcript)
	}
	return strings.TrimRight(template, " \t\r\n") + "\n\n" + transcript
}
