// Package snapshot keeps the local copy of the catalog snapshot in step with
// the remotely published one: it reads the manifest, downloads a new file
// only when the version changes, replaces the disk cache atomically and
// rebuilds the index.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
)

// Manifest names the currently published snapshot.
type Manifest struct {
	URL     string `json:"url"`
	Version string `json:"version"`
}

func (m Manifest) validate() error {
	if strings.TrimSpace(m.URL) == "" {
		return fmt.Errorf("%w: manifest has no url", apperrors.ErrFetchFailed)
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("%w: manifest has no version", apperrors.ErrFetchFailed)
	}
	return nil
}

// ManifestSource reports the manifest the service should converge on.
type ManifestSource interface {
	Manifest(ctx context.Context) (Manifest, error)
	Name() string
}

// StaticSource returns a fixed manifest, typically taken from configuration.
type StaticSource struct {
	M Manifest
}

func (s StaticSource) Manifest(context.Context) (Manifest, error) {
	if err := s.M.validate(); err != nil {
		return Manifest{}, err
	}
	return s.M, nil
}

func (StaticSource) Name() string { return "static" }

// HTTPSource reads a JSON manifest document from URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Manifest(ctx context.Context) (Manifest, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("building manifest request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: requesting manifest: %v", apperrors.ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("%w: manifest status %d", apperrors.ErrFetchFailed, resp.StatusCode)
	}
	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: decoding manifest: %v", apperrors.ErrFetchFailed, err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (s *HTTPSource) Name() string { return "http" }

// ValueReader looks up string values by key. The redis and postgres clients
// implement it.
type ValueReader interface {
	Values(ctx context.Context, keys ...string) (map[string]string, error)
}

// KeyValueSource reads the manifest from two keys of a remote-config store.
type KeyValueSource struct {
	name       string
	reader     ValueReader
	urlKey     string
	versionKey string
}

// NewRedisSource reads the manifest from two redis string keys.
func NewRedisSource(r ValueReader, urlKey, versionKey string) *KeyValueSource {
	return &KeyValueSource{name: "redis", reader: r, urlKey: urlKey, versionKey: versionKey}
}

// NewPostgresSource reads the manifest from two rows of the remote_config
// table.
func NewPostgresSource(r ValueReader, urlKey, versionKey string) *KeyValueSource {
	return &KeyValueSource{name: "postgres", reader: r, urlKey: urlKey, versionKey: versionKey}
}

func (s *KeyValueSource) Manifest(ctx context.Context) (Manifest, error) {
	vals, err := s.reader.Values(ctx, s.urlKey, s.versionKey)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: reading %s manifest: %v", apperrors.ErrFetchFailed, s.name, err)
	}
	m := Manifest{URL: vals[s.urlKey], Version: vals[s.versionKey]}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (s *KeyValueSource) Name() string { return s.name }
