package models

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scribe/internal/audio"
)

func TestOpenAISpeech_Transcribe(t *testing.T) {
	var (
		gotModel string
		gotRate  int
		gotLen   int
		gotAuth  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		samples, rate, err := audio.DecodeWAV(bytes.NewReader(data))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotRate, gotLen = rate, len(samples)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":" hello there "}`)
	}))
	defer srv.Close()

	s := NewOpenAISpeech(Options{OpenAIAPIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1/", STTModel: "whisper-1"})

	text, err := s.Transcribe(context.Background(), make([]float32, 1600), 16000)
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
	require.Equal(t, "whisper-1", gotModel)
	require.Equal(t, 16000, gotRate)
	require.Equal(t, 1600, gotLen)
	require.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAISpeech_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewOpenAISpeech(Options{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL + "/v1/", STTModel: "whisper-1"})
	if _, err := s.Transcribe(context.Background(), make([]float32, 10), 16000); err == nil {
		t.Fatal("Transcribe should fail on 500")
	}
}

func TestOpenAICompletion_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Headache for 3 days."}}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAICompletion(Options{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL + "/v1/", CompletionModel: "gpt-4o-mini"})

	text, err := c.Complete(context.Background(), "Chief complaint?", 128)
	require.NoError(t, err)
	require.Equal(t, "Headache for 3 days.", text)
	require.Equal(t, "gpt-4o-mini", body["model"])
	require.EqualValues(t, 128, body["max_completion_tokens"])
}

func TestOpenAICompletion_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	c := NewOpenAICompletion(Options{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL + "/v1/", CompletionModel: "m"})
	if _, err := c.Complete(context.Background(), "p", 10); err == nil {
		t.Fatal("Complete should fail with no choices")
	}
}

func TestAnthropicCompletion_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "- ibuprofen"}, {"type": "text", "text": " 200mg"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c := NewAnthropicCompletion(Options{AnthropicAPIKey: "k", AnthropicBaseURL: srv.URL, CompletionModel: "claude-3-5-haiku-latest"})

	text, err := c.Complete(context.Background(), "Medications?", 256)
	require.NoError(t, err)
	require.Equal(t, "- ibuprofen 200mg", text)
	require.EqualValues(t, 256, body["max_tokens"])
	require.Equal(t, "claude-3-5-haiku-latest", body["model"])
}
