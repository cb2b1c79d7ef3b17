// Package guide looks up operator guidance for fault ids.
package guide

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/willibrandon/faultscope/internal/faultid"
)

// Entry is the guidance recorded for one fault.
type Entry struct {
	FaultID  string `yaml:"fault_id" json:"fault_id"`
	Name     string `yaml:"name" json:"name,omitempty"`
	Severity string `yaml:"severity" json:"severity,omitempty"`
	Guidance string `yaml:"guidance" json:"guidance"`
}

// Lookup returns the guidance for a canonical fault id.
type Lookup interface {
	Lookup(canonical string) (Entry, bool)
}

type guideFile struct {
	Guides []Entry `yaml:"guides"`
}

// FileStore is a read-only Lookup backed by a YAML file.
type FileStore struct {
	entries map[string]Entry
}

// Load reads a guide file. Ids may be written in any accepted spelling; an
// id that does not normalize fails the load.
func Load(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading guide file: %w", err)
	}

	var file guideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing guide YAML: %w", err)
	}

	store := &FileStore{entries: make(map[string]Entry, len(file.Guides))}
	for i, e := range file.Guides {
		id, err := faultid.Normalize(e.FaultID)
		if err != nil {
			return nil, fmt.Errorf("guide entry %d: %w", i+1, err)
		}
		e.FaultID = id.Canonical
		store.entries[id.Canonical] = e
	}
	return store, nil
}

// Lookup returns the entry for id. Any spelling of the id is accepted.
func (s *FileStore) Lookup(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	n, err := faultid.Normalize(id)
	if err != nil {
		return Entry{}, false
	}
	e, ok := s.entries[n.Canonical]
	return e, ok
}

// Len returns the number of entries.
func (s *FileStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Empty is a Lookup that knows no faults.
type Empty struct{}

// Lookup always reports false.
func (Empty) Lookup(string) (Entry, bool) { return Entry{}, false }
