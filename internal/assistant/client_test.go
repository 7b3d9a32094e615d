package assistant

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"driverassist/internal/geo"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.m4a")
	if err := os.WriteFile(path, []byte("fake-audio-bytes"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestInteractSendsMultipartFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assistant/interact" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("session_id"); got != "sess-1" {
			t.Fatalf("unexpected session_id: %q", got)
		}
		if got := r.FormValue("current_location"); got == "" {
			t.Fatalf("current_location missing")
		}
		if got := r.FormValue("order_context"); got == "" {
			t.Fatalf("order_context missing")
		}
		file, _, err := r.FormFile("audio_data")
		if err != nil {
			t.Fatalf("audio_data missing: %v", err)
		}
		data, _ := io.ReadAll(file)
		file.Close()
		if string(data) != "fake-audio-bytes" {
			t.Fatalf("audio payload mismatch: %q", data)
		}
		io.WriteString(w, `{"request_transcription":"where to","response_text":"turn left","audio_file_path":"/audio/reply.mp3"}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, 5*time.Second)
	loc := geo.Point{Lat: 3.15, Lng: 101.7}
	result, err := client.Interact(context.Background(), "sess-1", writeTestAudio(t), &loc, &OrderContext{CustomerName: "Aida", Fare: "12.50"})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if result.Transcription != "where to" || result.ResponseText != "turn left" || result.AudioFilePath != "/audio/reply.mp3" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInteractTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.Client(), server.URL, 50*time.Millisecond)
	_, err := client.Interact(context.Background(), "sess-1", writeTestAudio(t), nil, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestInteractServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "stt unavailable")
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, 5*time.Second)
	_, err := client.Interact(context.Background(), "sess-1", writeTestAudio(t), nil, nil)
	if err == nil || errors.Is(err, ErrTimeout) {
		t.Fatalf("expected non-timeout transport error, got %v", err)
	}
}

func TestDetectSpeech(t *testing.T) {
	responses := []string{
		`{"speech_detected":true}`,
		`{"speech_detected":false}`,
	}
	idx := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assistant/detect-speech" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type: %s", got)
		}
		io.WriteString(w, responses[idx])
		idx++
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, 5*time.Second)
	detected, err := client.DetectSpeech(context.Background(), "sess-1", []byte("chunk"))
	if err != nil || !detected {
		t.Fatalf("expected speech detected, got %v (err %v)", detected, err)
	}
	detected, err = client.DetectSpeech(context.Background(), "sess-1", []byte("chunk"))
	if err != nil || detected {
		t.Fatalf("expected silence, got %v (err %v)", detected, err)
	}
}

func TestFilePlayerFetchesAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/reply.mp3" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, "mp3-bytes")
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "responses")
	player, err := NewFilePlayer(server.Client(), server.URL, dir)
	if err != nil {
		t.Fatalf("NewFilePlayer: %v", err)
	}
	if err := player.Play(context.Background(), "/audio/reply.mp3"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "reply.mp3"))
	if err != nil || string(data) != "mp3-bytes" {
		t.Fatalf("sink file wrong: %q (err %v)", data, err)
	}
}

func TestDetectSpeechFailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, 5*time.Second)
	detected, err := client.DetectSpeech(context.Background(), "sess-1", []byte("chunk"))
	if err == nil {
		t.Fatalf("expected an error to be surfaced")
	}
	if !detected {
		t.Fatalf("a failed check must count as speech detected")
	}
}
