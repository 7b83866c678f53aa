// Package snapshot persists the simulation state: compressed gob files for
// save/restore and an SQLite store for recording runs.
package snapshot

import (
	"compress/zlib"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/cascade"
)

// ErrCorrupt is returned when a decoded snapshot is internally inconsistent.
var ErrCorrupt = errors.New("corrupt snapshot")

func init() {
	// concrete types behind body.Variant
	gob.Register(body.SatelliteInfo{})
	gob.Register(body.DebrisInfo{})
}

// Snapshot is everything needed to resume a run.
type Snapshot struct {
	RunID     uuid.UUID
	Taken     time.Time // wall clock
	Step      uint64
	Time      float64 // sim seconds
	NextEvent uint64  // next breakup event id
	Cascade   cascade.State
	Bodies    []body.Body // ascending ID
	Pinned    []body.ID
}

// Validate checks ids are unique and ascending, pins refer to bodies, and
// every state vector is finite.
func (s *Snapshot) Validate() error {
	ids := make(map[body.ID]struct{}, len(s.Bodies))
	var prev body.ID
	for i := range s.Bodies {
		b := &s.Bodies[i]
		if b.ID == 0 || b.ID <= prev {
			return fmt.Errorf("body %d after %d: %w", b.ID, prev, ErrCorrupt)
		}
		if !b.Finite() {
			return fmt.Errorf("body %d not finite: %w", b.ID, ErrCorrupt)
		}
		ids[b.ID] = struct{}{}
		prev = b.ID
	}
	for _, id := range s.Pinned {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("pinned %d not present: %w", id, ErrCorrupt)
		}
	}
	return nil
}

// Encode writes s to w as zlib-compressed gob.
func Encode(w io.Writer, s *Snapshot) error {
	zw, err := zlib.NewWriterLevel(w, zlib.BestSpeed)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(s); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Decode reads a snapshot written by Encode and validates it.
func Decode(r io.Reader) (*Snapshot, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var s Snapshot
	if err := gob.NewDecoder(zr).Decode(&s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteFile encodes s into filename.
func WriteFile(filename string, s *Snapshot) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := Encode(file, s); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return file.Close()
}

// ReadFile decodes the snapshot in filename.
func ReadFile(filename string) (*Snapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	s, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return s, nil
}

// Dir is a Sink that writes each snapshot to its own file, named by step, in
// a directory.
type Dir struct {
	Path string
}

// Save writes s to <Path>/<step>.snap.
func (d Dir) Save(s *Snapshot) error {
	if err := os.MkdirAll(d.Path, 0755); err != nil {
		return err
	}
	return WriteFile(filepath.Join(d.Path, fmt.Sprintf("%010d.snap", s.Step)), s)
}
