package language

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotConfigured is returned when a Source has neither a usable path nor a URL.
var ErrNotConfigured = errors.New("interpreter module not configured")

// Source locates an interpreter WASM binary.
type Source struct {
	// Path is the local file. A leading "~/" expands to the home directory.
	Path string
	// URL is downloaded to Path when the file does not exist yet.
	URL string
	// Client is used for downloads; http.DefaultClient when nil.
	Client *http.Client
}

// Load returns the module bytes, downloading them first when needed.
func (s Source) Load(ctx context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, ErrNotConfigured
	}

	path := expandHome(s.Path)
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) || s.URL == "" {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := s.Fetch(ctx); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Fetch downloads URL into Path unless the file already exists.
func (s Source) Fetch(ctx context.Context) error {
	if s.Path == "" || s.URL == "" {
		return ErrNotConfigured
	}

	path := expandHome(s.Path)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create module dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", s.URL, resp.Status)
	}

	// Write to a temp file first so an interrupted download never leaves a
	// truncated module at Path.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".module-*.wasm")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", s.URL, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
