package repo

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// walEntry is one durable mutation record. Op distinguishes put from
// delete so replay can reconstruct tombstones where the entity kind needs
// them (spec section 9: "choose an explicit codec").
type walEntry[T any] struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value T      `json:"value"`
}

const (
	opPut    = "PUT"
	opDelete = "DELETE"
)

// wal is a newline-delimited-JSON append-only log, one file per entity
// kind, adapted from the teacher's single-entity WAL (internal/store/wal.go)
// to be generic over the stored value type.
type wal[T any] struct {
	mu   sync.Mutex
	file *os.File
}

func newWAL[T any](path string) (*wal[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open wal %s", path)
	}
	return &wal[T]{file: f}, nil
}

func (w *wal[T]) append(entry walEntry[T]) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal wal entry")
	}
	data = append(data, '\n')
	if _, err := w.file.Write(data); err != nil {
		return errors.Wrap(err, "write wal entry")
	}
	return w.file.Sync()
}

func (w *wal[T]) readAll() ([]walEntry[T], error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, 0); err != nil {
		return nil, err
	}
	var entries []walEntry[T]
	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e walEntry[T]
		if err := json.Unmarshal(line, &e); err != nil {
			// Corrupt entry: skip rather than abort recovery.
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (w *wal[T]) truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, 0)
	return err
}

func (w *wal[T]) close() error {
	return w.file.Close()
}
