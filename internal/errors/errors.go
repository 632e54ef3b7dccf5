package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Scribe error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"           // 404
	ErrNameAlreadyExists ErrorCode = "NAME_ALREADY_EXISTS" // 409
	ErrConflict          ErrorCode = "CONFLICT"            // 409
	ErrAudioCapture      ErrorCode = "AUDIO_CAPTURE"       // 502
	ErrTranscription     ErrorCode = "TRANSCRIPTION"       // 502
	ErrPromptExecution   ErrorCode = "PROMPT_EXECUTION"    // 502
	ErrModelUnavailable  ErrorCode = "MODEL_UNAVAILABLE"   // 503
	ErrDecryption        ErrorCode = "DECRYPTION"          // 422
	ErrPersistence       ErrorCode = "PERSISTENCE"         // 500
	ErrCancelled         ErrorCode = "CANCELLED"           // 499
	ErrInternal          ErrorCode = "INTERNAL"            // 500
)

// ScribeError represents a structured error with code, status, and details.
// Err holds the underlying cause, if any, and is reachable through errors.Unwrap.
type ScribeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *ScribeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ScribeError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ScribeError {
	return &ScribeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error. kind names the missing thing ("transcript", "prompt", "job").
func NewNotFound(kind, identifier string) *ScribeError {
	return &ScribeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewNameAlreadyExists creates a 409 error for prompt name collisions.
func NewNameAlreadyExists(name string) *ScribeError {
	return &ScribeError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("prompt with name %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewConflict creates a 409 error for general conflicts (e.g. invalid job state transitions).
func NewConflict(msg string) *ScribeError {
	return &ScribeError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewAudioCapture creates an error for a device or stream failure during recording.
func NewAudioCapture(err error) *ScribeError {
	return &ScribeError{
		Code:    ErrAudioCapture,
		Status:  502,
		Message: fmt.Sprintf("audio capture failed: %v", err),
		Err:     err,
	}
}

// NewTranscription creates an error for a speech-to-text failure on one chunk.
// The job halts at its last checkpoint and is retried from chunkIndex on the next run.
func NewTranscription(chunkIndex int, err error) *ScribeError {
	return &ScribeError{
		Code:    ErrTranscription,
		Status:  502,
		Message: fmt.Sprintf("transcription failed at chunk %d: %v", chunkIndex, err),
		Details: map[string]any{"chunk_index": chunkIndex},
		Err:     err,
	}
}

// NewPromptExecution creates an error for a failed completion of a single prompt.
func NewPromptExecution(prompt string, err error) *ScribeError {
	return &ScribeError{
		Code:    ErrPromptExecution,
		Status:  502,
		Message: fmt.Sprintf("prompt %q failed: %v", prompt, err),
		Details: map[string]any{"prompt": prompt},
		Err:     err,
	}
}

// NewModelUnavailable creates a 503 error when a model capability is not ready.
func NewModelUnavailable(msg string) *ScribeError {
	return &ScribeError{
		Code:    ErrModelUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewDecryption creates an error for a wrong key or altered ciphertext.
func NewDecryption(err error) *ScribeError {
	return &ScribeError{
		Code:    ErrDecryption,
		Status:  422,
		Message: "decryption failed: wrong key or corrupted ciphertext",
		Err:     err,
	}
}

// NewPersistence creates an error for a failed checkpoint or transcript write.
func NewPersistence(op string, err error) *ScribeError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &ScribeError{
		Code:    ErrPersistence,
		Status:  500,
		Message: msg,
		Details: map[string]any{"operation": op},
		Err:     err,
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by the client.
func NewCancelled(operation string) *ScribeError {
	return &ScribeError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ScribeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ScribeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a ScribeError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *ScribeError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the first ScribeError in err's chain.
func As(err error) (*ScribeError, bool) {
	var sErr *ScribeError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// ChunkIndex returns the failed chunk of a TRANSCRIPTION error.
func ChunkIndex(err error) (int, bool) {
	sErr, ok := As(err)
	if !ok || sErr.Code != ErrTranscription {
		return 0, false
	}
	idx, ok := sErr.Details["chunk_index"].(int)
	return idx, ok
}
