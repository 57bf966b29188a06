// Package upstream loads the domain data a report is generated from.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrMissingUpstreamData is returned when a subject has no usable data.
var ErrMissingUpstreamData = errors.New("upstream: no data for subject")

// Payload is the opaque domain data for one subject.
type Payload map[string]any

// Source resolves a subject id to its payload. Implementations return
// ErrMissingUpstreamData (possibly wrapped) when nothing is available.
type Source interface {
	Load(ctx context.Context, subjectID string) (Payload, error)
}

// Compile-time checks.
var (
	_ Source = (*DirSource)(nil)
	_ Source = (*MapSource)(nil)
)

// ---------------------------------------------------------------------------
// DirSource
// ---------------------------------------------------------------------------

// DirSource reads <dir>/<subject>.json, .yaml or .yml, in that order.
type DirSource struct {
	dir string
}

// NewDirSource returns a Source backed by files in dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

var dirExtensions = []string{".json", ".yaml", ".yml"}

// Load reads and decodes the subject's file.
func (s *DirSource) Load(ctx context.Context, subjectID string) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}

	for _, ext := range dirExtensions {
		path := filepath.Join(s.dir, subjectID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("upstream: read %s: %w", path, err)
		}

		var p Payload
		if ext == ".json" {
			err = json.Unmarshal(data, &p)
		} else {
			err = yaml.Unmarshal(data, &p)
		}
		if err != nil {
			return nil, fmt.Errorf("upstream: decode %s: %w", path, err)
		}
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", ErrMissingUpstreamData, path)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrMissingUpstreamData, subjectID)
}

// validSubject keeps subject ids from escaping the data directory.
func validSubject(subjectID string) error {
	if subjectID == "" || subjectID == "." || subjectID == ".." ||
		strings.ContainsAny(subjectID, `/\`) {
		return fmt.Errorf("upstream: invalid subject id %q", subjectID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// MapSource
// ---------------------------------------------------------------------------

// MapSource is an in-memory Source.
type MapSource struct {
	mu   sync.RWMutex
	data map[string]Payload
}

// NewMapSource returns a MapSource seeded with data.
func NewMapSource(data map[string]Payload) *MapSource {
	m := &MapSource{data: make(map[string]Payload, len(data))}
	for k, v := range data {
		m.data[k] = v
	}
	return m
}

// Set stores the payload for a subject.
func (m *MapSource) Set(subjectID string, p Payload) {
	m.mu.Lock()
	m.data[subjectID] = p
	m.mu.Unlock()
}

// Load returns the stored payload.
func (m *MapSource) Load(_ context.Context, subjectID string) (Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data[subjectID]
	if !ok || len(p) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingUpstreamData, subjectID)
	}
	return p, nil
}
