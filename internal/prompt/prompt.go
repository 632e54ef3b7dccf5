// Package prompt defines extraction prompts, their per-transcript result
// slots, and the on-disk prompt registry.
package prompt

// Placeholder is replaced by the transcript when a template is rendered.
const Placeholder = "{transcript}"

// Definition is a named template run against a finished transcript.
type Definition struct {
	// Name is unique among definitions (compared after Normalize)
	Name string `json:"name"`

	// Template is the prompt text; Placeholder marks where the transcript goes
	Template string `json:"prompt"`

	// Enabled definitions take part in RunAll
	Enabled bool `json:"enabled"`
}

// Owner records who last wrote a result slot.
type Owner string

const (
	OwnerPipeline Owner = "pipeline"
	OwnerUser     Owner = "user"
)

// Result is the slot for one prompt's output on one transcript.
type Result struct {
	TranscriptID string `json:"transcript_id"`
	Prompt       string `json:"prompt"`
	Text         string `json:"text"`
	IsUserEdited bool   `json:"is_user_edited"`
	IsError      bool   `json:"is_error"`

	// Running is true between a run's dispatch and its commit
	Running bool `json:"running"`

	// Owner is whoever last claimed or wrote the slot
	Owner Owner `json:"owner"`

	// Generation increases on every claim and every edit. A run may only
	// commit into the generation it claimed.
	Generation int64 `json:"generation"`

	UpdatedAt int64 `json:"updated_at"`
}

// ErrorText formats a failure the way it is shown in a result slot.
func ErrorText(err error) string {
	return "Error: " + err.Error()
}

// Defaults is the list written when no prompt configuration exists.
func Defaults() []Definition {
	return []Definition{
		{
			Name:     "Summary",
			Template: "Summarize the following transcript in a few short paragraphs. Keep names, numbers and decisions.\n\n" + Placeholder,
			Enabled:  true,
		},
		{
			Name:     "Chief Complaint",
			Template: "From the transcript below, state the patient's chief complaint in one sentence. If none is mentioned, answer \"Not stated\".\n\n" + Placeholder,
			Enabled:  true,
		},
		{
			Name:     "Medications",
			Template: "List every medication mentioned in the transcript below as a markdown bullet list with dose and frequency when given.\n\n" + Placeholder,
			Enabled:  true,
		},
		{
			Name:     "Follow-up Plan",
			Template: "Extract the follow-up plan from the transcript below: next appointments, tests ordered and instructions given.\n\n" + Placeholder,
			Enabled:  false,
		},
	}
}
