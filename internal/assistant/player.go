package assistant

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Player renders response audio on the device. The simulator ships a
// file-sink implementation; a real build plugs the platform audio output here.
type Player interface {
	Play(ctx context.Context, audioPath string) error
}

// NopPlayer discards playback requests.
type NopPlayer struct{}

func (NopPlayer) Play(ctx context.Context, audioPath string) error { return nil }

// FilePlayer "plays" a response by fetching the audio from the backend and
// writing it into a local directory.
type FilePlayer struct {
	httpClient *http.Client
	baseURL    string
	dir        string
}

// NewFilePlayer constructs a file-sink player writing fetched audio under dir.
func NewFilePlayer(httpClient *http.Client, baseURL, dir string) (*FilePlayer, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("player: create sink dir: %w", err)
	}
	return &FilePlayer{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dir:        dir,
	}, nil
}

func (p *FilePlayer) Play(ctx context.Context, audioPath string) error {
	endpoint := p.baseURL + "/" + strings.TrimLeft(audioPath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("player: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("player: fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("player: http %s fetching %s", resp.Status, audioPath)
	}

	out, err := os.Create(filepath.Join(p.dir, filepath.Base(audioPath)))
	if err != nil {
		return fmt.Errorf("player: create sink file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("player: write sink file: %w", err)
	}
	return out.Close()
}
