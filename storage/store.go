// Package storage defines the persistence boundary for fitted artifacts.
// The engine hands an opaque artifact to a store and keeps only the
// returned reference; on-disk formats belong to the store, not the
// engine.
package storage

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// ArtifactStore persists opaque fitted artifacts.
type ArtifactStore interface {
	// Put stores the artifact under the given id and returns a reference
	// usable later to reload it.
	Put(id string, artifact interface{}) (string, error)

	// Get reloads the artifact behind a reference.
	Get(ref string) (interface{}, error)
}

// envelope wraps the artifact so gob can round-trip interface values.
// Concrete artifact types register themselves with gob at init.
type envelope struct {
	Artifact interface{}
}

// GobStore is a directory-backed ArtifactStore using gob encoding.
type GobStore struct {
	dir string
}

// NewGobStore creates the directory if needed.
func NewGobStore(dir string) (*GobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: create artifact dir")
	}
	return &GobStore{dir: dir}, nil
}

// Put writes the artifact to <dir>/<id>.gob and returns that path.
func (s *GobStore) Put(id string, artifact interface{}) (string, error) {
	ref := filepath.Join(s.dir, id+".gob")
	f, err := os.Create(ref)
	if err != nil {
		return "", errors.Wrap(err, "storage: create artifact file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(&envelope{Artifact: artifact}); err != nil {
		return "", errors.Wrap(err, "storage: encode artifact")
	}
	return ref, nil
}

// Get reloads an artifact from the reference returned by Put.
func (s *GobStore) Get(ref string) (interface{}, error) {
	f, err := os.Open(ref)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open artifact file")
	}
	defer f.Close()
	var env envelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "storage: decode artifact")
	}
	return env.Artifact, nil
}
