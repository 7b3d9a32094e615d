package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driverassist/internal/geo"
)

// ErrTimeout marks a remote call that exceeded its budget, as opposed to
// other transport failures.
var ErrTimeout = errors.New("assistant: request timed out")

// InteractResult is the backend's reply to a voice interaction.
type InteractResult struct {
	Transcription string `json:"request_transcription"`
	ResponseText  string `json:"response_text"`
	AudioFilePath string `json:"audio_file_path"`
}

// OrderContext carries the active ride details alongside a voice request.
type OrderContext struct {
	CustomerName    string `json:"customer_name,omitempty"`
	OriginName      string `json:"origin_name,omitempty"`
	DestinationName string `json:"destination_name,omitempty"`
	Fare            string `json:"fare,omitempty"`
}

// Client talks to the backend's voice endpoints.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	interactTimeout time.Duration
}

// NewClient constructs an assistant client.
func NewClient(httpClient *http.Client, baseURL string, interactTimeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if interactTimeout <= 0 {
		interactTimeout = 30 * time.Second
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(baseURL, "/"),
		interactTimeout: interactTimeout,
	}
}

// Interact uploads a finished recording and returns the assistant's reply.
// location and orderCtx are optional.
func (c *Client) Interact(ctx context.Context, sessionID, audioPath string, location *geo.Point, orderCtx *OrderContext) (InteractResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.interactTimeout)
	defer cancel()

	audio, err := os.Open(audioPath)
	if err != nil {
		return InteractResult{}, fmt.Errorf("interact: open recording: %w", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("session_id", sessionID); err != nil {
		return InteractResult{}, fmt.Errorf("interact: write field: %w", err)
	}
	if location != nil {
		if err := writer.WriteField("current_location", fmt.Sprintf("%f,%f", location.Lat, location.Lng)); err != nil {
			return InteractResult{}, fmt.Errorf("interact: write field: %w", err)
		}
	}
	if orderCtx != nil {
		data, err := json.Marshal(orderCtx)
		if err != nil {
			return InteractResult{}, fmt.Errorf("interact: marshal order context: %w", err)
		}
		if err := writer.WriteField("order_context", string(data)); err != nil {
			return InteractResult{}, fmt.Errorf("interact: write field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("audio_data", filepath.Base(audioPath))
	if err != nil {
		return InteractResult{}, fmt.Errorf("interact: create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return InteractResult{}, fmt.Errorf("interact: copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return InteractResult{}, fmt.Errorf("interact: close writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/assistant/interact", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return InteractResult{}, fmt.Errorf("interact: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return InteractResult{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return InteractResult{}, fmt.Errorf("interact: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return InteractResult{}, fmt.Errorf("interact: http %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var result InteractResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return InteractResult{}, fmt.Errorf("interact: decode: %w", err)
	}
	return result, nil
}

// DetectSpeech asks the backend whether the audio chunk contains speech.
// Any failure is reported as speech detected so the caller never stops a
// recording early on a broken check (fail open).
func (c *Client) DetectSpeech(ctx context.Context, sessionID string, chunk []byte) (bool, error) {
	payload := struct {
		SessionID string `json:"session_id"`
		AudioData string `json:"audio_data"`
	}{
		SessionID: sessionID,
		AudioData: base64.StdEncoding.EncodeToString(chunk),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return true, fmt.Errorf("detect-speech: marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/assistant/detect-speech", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return true, fmt.Errorf("detect-speech: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("detect-speech: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return true, fmt.Errorf("detect-speech: http %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var parsed struct {
		SpeechDetected bool `json:"speech_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return true, fmt.Errorf("detect-speech: decode: %w", err)
	}
	return parsed.SpeechDetected, nil
}
