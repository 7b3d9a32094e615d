package voice

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRecordingNotFound is returned when a stored recording does not exist.
var ErrRecordingNotFound = errors.New("voice: recording not found")

// RecordingInfo describes one stored recording.
type RecordingInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store keeps finished captures in a local directory.
type Store struct {
	dir string
}

// NewStore creates the recordings directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("voice: create recordings dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save copies a capture file into the store under a generated name.
func (s *Store) Save(srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("voice: open capture: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("recording-%s%s", uuid.NewString(), extensionOf(srcPath))
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("voice: create stored recording: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("voice: copy recording: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("voice: close stored recording: %w", err)
	}
	return name, nil
}

// List returns stored recordings, newest first.
func (s *Store) List() ([]RecordingInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("voice: read recordings dir: %w", err)
	}
	infos := make([]RecordingInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, RecordingInfo{Name: entry.Name(), Size: fi.Size(), Modified: fi.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Modified.After(infos[j].Modified) })
	return infos, nil
}

// Delete removes a stored recording by name.
func (s *Store) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRecordingNotFound, name)
		}
		return fmt.Errorf("voice: delete recording: %w", err)
	}
	return nil
}

// Path returns the on-disk path of a stored recording.
func (s *Store) Path(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("voice: invalid recording name %q", name)
	}
	return nil
}

func extensionOf(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return ext
	}
	return ".m4a"
}
