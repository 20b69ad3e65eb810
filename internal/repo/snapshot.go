package repo

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// snapshotManager periodically compacts a WAL into a single JSON file via
// atomic rename, adapted from the teacher's internal/store/snapshot.go
// (generalized over the stored value type).
type snapshotManager[T any] struct {
	path string
}

func newSnapshotManager[T any](dataDir, name string) *snapshotManager[T] {
	return &snapshotManager[T]{path: filepath.Join(dataDir, name+".snapshot.json")}
}

func (s *snapshotManager[T]) save(entries map[string]T) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "write snapshot tmp")
	}
	// Atomic rename: a crash between WriteFile and Rename leaves the
	// previous snapshot (or none) intact.
	return os.Rename(tmp, s.path)
}

func (s *snapshotManager[T]) load() (map[string]T, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot")
	}
	var out map[string]T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshal snapshot")
	}
	return out, nil
}
