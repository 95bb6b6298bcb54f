package duckdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestSuffix is appended to the dataset target to name its manifest.
const ManifestSuffix = ".manifest.yaml"

// Manifest describes one ingestion run's dataset.
// Units are stored relative to the manifest's directory.
type Manifest struct {
	RunID     string    `yaml:"run_id"`
	Mode      Mode      `yaml:"mode"`
	Units     []string  `yaml:"units"`
	Records   int64     `yaml:"records"`
	Columns   []string  `yaml:"columns"`
	Complete  bool      `yaml:"complete"`
	CreatedAt time.Time `yaml:"created_at"`
}

// ManifestPath returns the manifest location for a dataset target.
func ManifestPath(target string) string {
	return target + ManifestSuffix
}

// WriteManifest writes m next to target, replacing any previous manifest atomically.
func WriteManifest(target string, m Manifest) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	path := ManifestPath(target)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("manifest: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest: rename: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest for target. It returns os.ErrNotExist
// (wrapped) when the dataset has none.
func ReadManifest(target string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(ManifestPath(target))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("manifest: parse: %w", err)
	}
	if m.Mode != ModeSplit && m.Mode != ModeSingle {
		return m, fmt.Errorf("manifest: unknown mode %q", m.Mode)
	}
	return m, nil
}

// UnitPaths resolves the manifest's units against the manifest directory.
func (m Manifest) UnitPaths(target string) []string {
	dir := filepath.Dir(target)
	out := make([]string, 0, len(m.Units))
	for _, u := range m.Units {
		if filepath.IsAbs(u) {
			out = append(out, u)
			continue
		}
		out = append(out, filepath.Join(dir, u))
	}
	return out
}

func manifestExists(target string) bool {
	_, err := os.Stat(ManifestPath(target))
	return !errors.Is(err, os.ErrNotExist)
}
