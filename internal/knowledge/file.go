package knowledge

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"inboxpilot/internal/logging"
)

// FileFormat is the on-disk YAML shape of the brand settings file.
type FileFormat struct {
	Policy string `yaml:"policy"`
	Facts  []Fact `yaml:"facts"`
}

// LoadFile reads a knowledge YAML file into a FileFormat.
func LoadFile(path string) (*FileFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	var ff FileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}

	seen := make(map[string]bool, len(ff.Facts))
	for _, f := range ff.Facts {
		if f.ID == "" {
			return nil, fmt.Errorf("knowledge file %s: fact with empty id", path)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("knowledge file %s: duplicate fact id %q", path, f.ID)
		}
		seen[f.ID] = true
	}

	return &ff, nil
}

// LoadIntoStore reads the file at path and replaces the store contents.
// A missing file leaves the store untouched and is not an error: the brand
// may simply not have curated any facts yet.
func LoadIntoStore(path string, store *Store) error {
	ff, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Knowledge("No knowledge file at %s, store unchanged", path)
			return nil
		}
		return err
	}

	store.Replace(ff.Facts, ff.Policy)
	logging.Knowledge("Loaded knowledge file %s: facts=%d", path, len(ff.Facts))
	return nil
}

// SaveFile writes the store contents back to a YAML file.
func SaveFile(path string, store *Store) error {
	snap := store.Snapshot()
	ff := FileFormat{
		Policy: snap.Policy,
		Facts:  snap.Facts,
	}

	data, err := yaml.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge file: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
