package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestScribeError_Error(t *testing.T) {
	err := &ScribeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "transcript not found",
	}

	expected := "NOT_FOUND: transcript not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("name is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "name is required" {
		t.Errorf("Message = %q, want %q", err.Message, "name is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("prompt", "Summary")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "Summary" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "Summary")
	}
	if err.Details["kind"] != "prompt" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "prompt")
	}
}

func TestNewNameAlreadyExists(t *testing.T) {
	err := NewNameAlreadyExists("Summary")

	if err.Code != ErrNameAlreadyExists {
		t.Errorf("Code = %q, want %q", err.Code, ErrNameAlreadyExists)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["name"] != "Summary" {
		t.Errorf("Details[name] = %v, want %q", err.Details["name"], "Summary")
	}
}

func TestNewTranscription(t *testing.T) {
	cause := stderrors.New("model exploded")
	err := NewTranscription(7, cause)

	if err.Code != ErrTranscription {
		t.Errorf("Code = %q, want %q", err.Code, ErrTranscription)
	}
	if err.Details["chunk_index"] != 7 {
		t.Errorf("Details[chunk_index] = %v, want 7", err.Details["chunk_index"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected transcription error to wrap its cause")
	}
}

func TestChunkIndex(t *testing.T) {
	wrapped := fmt.Errorf("job failed: %w", NewTranscription(3, nil))

	idx, ok := ChunkIndex(wrapped)
	if !ok {
		t.Fatal("ChunkIndex() ok = false, want true")
	}
	if idx != 3 {
		t.Errorf("ChunkIndex() = %d, want 3", idx)
	}

	if _, ok := ChunkIndex(NewInternal(nil)); ok {
		t.Error("ChunkIndex() on INTERNAL should report ok = false")
	}
	if _, ok := ChunkIndex(stderrors.New("plain")); ok {
		t.Error("ChunkIndex() on plain error should report ok = false")
	}
}

func TestNewDecryption(t *testing.T) {
	err := NewDecryption(stderrors.New("message authentication failed"))

	if err.Code != ErrDecryption {
		t.Errorf("Code = %q, want %q", err.Code, ErrDecryption)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
}

func TestNewPersistence(t *testing.T) {
	err := NewPersistence("write checkpoint", stderrors.New("disk full"))

	if err.Code != ErrPersistence {
		t.Errorf("Code = %q, want %q", err.Code, ErrPersistence)
	}
	if err.Message != "write checkpoint: disk full" {
		t.Errorf("Message = %q, want %q", err.Message, "write checkpoint: disk full")
	}
	if err.Details["operation"] != "write checkpoint" {
		t.Errorf("Details[operation] = %v, want %q", err.Details["operation"], "write checkpoint")
	}
}

func TestNewPromptExecution(t *testing.T) {
	err := NewPromptExecution("Summary", stderrors.New("rate limited"))

	if err.Code != ErrPromptExecution {
		t.Errorf("Code = %q, want %q", err.Code, ErrPromptExecution)
	}
	if err.Details["prompt"] != "Summary" {
		t.Errorf("Details[prompt] = %v, want %q", err.Details["prompt"], "Summary")
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}

	err = NewInternal(stderrors.New("boom"))
	if err.Message != "boom" {
		t.Errorf("Message = %q, want %q", err.Message, "boom")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("job", "x"), ErrNotFound, true},
		{"different code", NewNotFound("job", "x"), ErrConflict, false},
		{"wrapped", fmt.Errorf("ctx: %w", NewDecryption(nil)), ErrDecryption, true},
		{"plain error", stderrors.New("x"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}
