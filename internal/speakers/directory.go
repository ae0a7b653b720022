// Package speakers provides the enrolled-speaker directory: known voices
// with embeddings the identifier matches against. The directory is
// read-only to the pipeline; enrollment happens elsewhere.
package speakers

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/openscribe/meetingd/internal/errors"
)

// Profile is one enrolled speaker. The embedding is a fixed-length voice
// vector (192 for ECAPA, 512 for x-vector) captured at enrollment time.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	Embedding []float32 `json:"embedding"`
}

// Directory is the read-only view the pipeline consumes.
type Directory interface {
	Profiles() []Profile
	ByID(id string) (Profile, bool)
}

// FileDirectory loads profiles from a JSON file on disk.
type FileDirectory struct {
	path string

	mu       sync.RWMutex
	profiles []Profile
}

// LoadFile creates a directory backed by the JSON file at path. A missing
// file is not an error: it means no speakers are enrolled yet.
func LoadFile(path string) (*FileDirectory, error) {
	d := &FileDirectory{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the file, replacing the in-memory profile set.
func (d *FileDirectory) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			d.mu.Lock()
			d.profiles = nil
			d.mu.Unlock()
			return nil
		}
		return errors.Wrap(err, errors.CodeConfig, "read speaker profiles")
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return errors.Wrap(err, errors.CodeConfig, "parse speaker profiles")
	}

	d.mu.Lock()
	d.profiles = profiles
	d.mu.Unlock()
	return nil
}

// Profiles returns a copy of the enrolled profiles.
func (d *FileDirectory) Profiles() []Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Profile(nil), d.profiles...)
}

// ByID looks up a profile by identity.
func (d *FileDirectory) ByID(id string) (Profile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Static is a fixed in-memory directory, mainly for tests and batch import.
type Static []Profile

// Profiles returns the profile list.
func (s Static) Profiles() []Profile { return s }

// ByID looks up a profile by identity.
func (s Static) ByID(id string) (Profile, bool) {
	for _, p := range s {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}
