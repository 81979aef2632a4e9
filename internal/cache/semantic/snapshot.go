package semantic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/davidbz/hearth/internal/observability"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

// snapshot is the CBOR document written inside the zstd frame.
type snapshot struct {
	Version   int             `cbor:"1,keyasint"`
	Dimension int             `cbor:"2,keyasint"`
	Entries   []snapshotEntry `cbor:"3,keyasint"`
}

type snapshotEntry struct {
	SequenceID uint64    `cbor:"1,keyasint"`
	Model      string    `cbor:"2,keyasint"`
	Vector     []float64 `cbor:"3,keyasint"`
	Answer     string    `cbor:"4,keyasint"`
	CreatedAt  time.Time `cbor:"5,keyasint"`
}

//nolint:gochecknoglobals // encoder modes are immutable once built
var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	snapshotEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("semantic: CBOR encoder initialization failed: " + err.Error())
	}

	snapshotDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("semantic: CBOR decoder initialization failed: " + err.Error())
	}
}

// Save writes every entry, oldest first, as a zstd-compressed CBOR document.
func (i *Index) Save(w io.Writer) error {
	entries := i.Entries()

	doc := snapshot{
		Version:   snapshotVersion,
		Dimension: i.dimension,
		Entries:   make([]snapshotEntry, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, snapshotEntry{
			SequenceID: e.SequenceID,
			Model:      e.Model,
			Vector:     e.Vector,
			Answer:     e.Answer,
			CreatedAt:  e.CreatedAt,
		})
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if err := snapshotEncMode.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	return nil
}

// Load replaces the index contents with a snapshot written by Save. When the
// snapshot holds more entries than the index capacity, the newest are kept.
// Sequence numbers and creation times are preserved.
func (i *Index) Load(r io.Reader) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var doc snapshot
	if err := snapshotDecMode.NewDecoder(zr).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if doc.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}

	if doc.Dimension != i.dimension {
		return fmt.Errorf("snapshot dimension %d does not match index dimension %d", doc.Dimension, i.dimension)
	}

	entries := doc.Entries
	if len(entries) > i.capacity {
		entries = entries[len(entries)-i.capacity:]
	}

	for n, e := range entries {
		if len(e.Vector) != i.dimension {
			return fmt.Errorf("snapshot entry %d has dimension %d", n, len(e.Vector))
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.vectors = make([]float64, 0, len(entries)*i.dimension)
	i.slots = make([]slot, 0, len(entries))
	i.oldest = 0

	for _, e := range entries {
		i.put(slot{
			sequenceID: e.SequenceID,
			model:      e.Model,
			answer:     e.Answer,
			createdAt:  e.CreatedAt,
		}, e.Vector)

		if e.SequenceID > i.lastSequence {
			i.lastSequence = e.SequenceID
		}
	}

	return nil
}

// SaveFile writes a snapshot to path atomically.
func (i *Index) SaveFile(ctx context.Context, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := i.Save(tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	observability.FromContext(ctx).Info("cache snapshot saved",
		observability.String("path", path),
		observability.Int("entries", i.Len()))

	return nil
}

// LoadFile restores a snapshot from path. A missing file leaves the index
// empty and is not an error.
func (i *Index) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	if err := i.Load(f); err != nil {
		return err
	}

	observability.FromContext(ctx).Info("cache snapshot loaded",
		observability.String("path", path),
		observability.Int("entries", i.Len()))

	return nil
}
