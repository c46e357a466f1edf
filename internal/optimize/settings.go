package optimize

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings are the per-file optimization parameters.
type Settings struct {
	// Width is the output width in pixels; height follows the aspect ratio.
	Width int `yaml:"width"`
	// P3ToSRGB converts Display P3 pixels to sRGB.
	P3ToSRGB bool `yaml:"p3_to_srgb"`
	// JPEGQuality must be 0 for images that keep transparency and 1..100
	// otherwise.
	JPEGQuality int `yaml:"jpeg_quality"`
}

// SettingsFile maps source paths, relative to the source root and using
// forward slashes, to their settings.
type SettingsFile struct {
	Files map[string]Settings `yaml:"files"`
}

// LoadSettings reads a SettingsFile from path. Unknown keys are rejected so
// that typos do not silently fall back to zero values.
func LoadSettings(path string) (SettingsFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return SettingsFile{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sf SettingsFile
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return SettingsFile{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	for name, s := range sf.Files {
		if s.Width <= 0 {
			return SettingsFile{}, fmt.Errorf("settings for %s: width must be > 0", name)
		}
		if s.JPEGQuality < 0 || s.JPEGQuality > 100 {
			return SettingsFile{}, fmt.Errorf("settings for %s: jpeg_quality must be within [0,100]", name)
		}
	}
	return sf, nil
}

// Lookup returns the settings for rel, a path relative to the source root.
func (sf SettingsFile) Lookup(rel string) (Settings, bool) {
	s, ok := sf.Files[filepath.ToSlash(rel)]
	return s, ok
}
