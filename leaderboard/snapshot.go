package leaderboard

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/autostack-ml/autostack/pkg/errors"
)

// Snapshot is the serializable view of a board: the append-only entry
// log plus the layer arena. Fitted artifacts are persisted separately
// through the artifact store; a snapshot only records their references.
type Snapshot struct {
	MetricName string
	Entries    []Entry
	Layers     [][]string
	StoreRefs  map[string]string
}

// Snapshot captures the board's current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	refs := make(map[string]string, len(b.models))
	for id, fm := range b.models {
		if fm.StoreRef != "" {
			refs[id] = fm.StoreRef
		}
	}
	layers := make([][]string, len(b.layers))
	for i, l := range b.layers {
		layers[i] = append([]string(nil), l...)
	}
	return Snapshot{
		MetricName: b.metric.Name,
		Entries:    append([]Entry(nil), b.entries...),
		Layers:     layers,
		StoreRefs:  refs,
	}
}

// WriteSnapshot gob-encodes the snapshot.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return errors.Wrap(err, "leaderboard: encode snapshot")
	}
	return nil
}

// ReadSnapshot gob-decodes a snapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, errors.Wrap(err, "leaderboard: decode snapshot")
	}
	return s, nil
}

// SaveSnapshot writes the snapshot to a file.
func SaveSnapshot(path string, s Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "leaderboard: create snapshot file")
	}
	defer f.Close()
	return WriteSnapshot(f, s)
}

// LoadSnapshot reads a snapshot from a file.
func LoadSnapshot(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "leaderboard: open snapshot file")
	}
	defer f.Close()
	return ReadSnapshot(f)
}
