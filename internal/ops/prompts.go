package ops

import (
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/prompt"
)

// ListPromptsOutput contains the result of the ListPrompts operation.
type ListPromptsOutput struct {
	Items []prompt.Definition `json:"items"`
	Path  string              `json:"path"`
}

// ListPrompts returns every prompt definition in configured order.
func (s *Service) ListPrompts() *ListPromptsOutput {
	items := s.Prompts.List()
	if items == nil {
		items = []prompt.Definition{}
	}
	return &ListPromptsOutput{Items: items, Path: s.Prompts.Path()}
}

// AddPromptInput contains parameters for the AddPrompt operation.
type AddPromptInput struct {
	Name     string
	Template string
	Enabled  *bool // default: true
}

// AddPrompt appends a prompt definition. Names are unique after normalization.
func (s *Service) AddPrompt(input AddPromptInput) (*prompt.Definition, error) {
	name, err := requireField("name", input.Name)
	if err != nil {
		return nil, err
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	def, err := s.Prompts.Add(prompt.Definition{Name: name, Template: input.Template, Enabled: enabled})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// UpdatePromptInput contains parameters for the UpdatePrompt operation.
// Nil fields are left unchanged.
type UpdatePromptInput struct {
	Name     string
	Template *string
	Enabled  *bool
}

// UpdatePrompt changes a prompt's template or enabled flag.
func (s *Service) UpdatePrompt(input UpdatePromptInput) (*prompt.Definition, error) {
	name, err := requireField("name", input.Name)
	if err != nil {
		return nil, err
	}
	if input.Template == nil && input.Enabled == nil {
		return nil, errors.NewInvalidRequest("nothing to update: set template or enabled")
	}

	def, err := s.Prompts.Update(name, prompt.UpdateInput{Template: input.Template, Enabled: input.Enabled})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// RemovePromptOutput contains the result of the RemovePrompt operation.
type RemovePromptOutput struct {
	Removed bool   `json:"removed"`
	Name    string `json:"name"`
}

// RemovePrompt deletes a prompt definition. Existing result slots are kept.
func (s *Service) RemovePrompt(name string) (*RemovePromptOutput, error) {
	name, err := requireField("name", name)
	if err != nil {
		return nil, err
	}
	if err := s.Prompts.Remove(name); err != nil {
		return nil, err
	}
	return &RemovePromptOutput{Removed: true, Name: name}, nil
}
