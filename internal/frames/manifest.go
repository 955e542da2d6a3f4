package frames

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrEmptyManifest is returned when a manifest lists no frames.
var ErrEmptyManifest = errors.New("manifest has no frames")

// LoadManifest reads a JSON array of frame entries from path. Entry URLs that
// are relative file paths are resolved against the manifest's directory.
func LoadManifest(fs afero.Fs, path string) ([]Raw, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var raw []Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyManifest
	}

	dir := filepath.Dir(path)
	for i := range raw {
		if raw[i].URL == "" {
			return nil, fmt.Errorf("manifest %s: entry %d has no url", path, i)
		}
		raw[i].URL = resolve(dir, raw[i].URL)
	}
	return raw, nil
}

func resolve(dir, ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(dir, ref)
}
