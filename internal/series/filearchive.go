package series

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rickgao/salestore/internal/model"
	"github.com/rickgao/salestore/internal/protocol"
)

// Day file format (big-endian, strings uint16 length-prefixed UTF-8):
//
//	[day:int32][count:int32]
//	count x [product:string][quantity:int64][price:float64][timestamp:int64]
const (
	dayFilePrefix = "series_"
	dayFileSuffix = ".dat"
)

// FileArchive stores each evicted day as series_<day>.dat in a directory.
type FileArchive struct {
	dir string

	// Serializes writers of the same directory; readers do not take it.
	mu sync.Mutex
}

// NewFileArchive creates the directory if needed.
func NewFileArchive(dir string) (*FileArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

var _ Archive = (*FileArchive)(nil)

// Path returns the file path used for day.
func (a *FileArchive) Path(day int) string {
	return filepath.Join(a.dir, dayFilePrefix+strconv.Itoa(day)+dayFileSuffix)
}

// Store writes the day to a temp file and renames it into place.
func (a *FileArchive) Store(_ context.Context, day int, events []model.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tmp, err := os.CreateTemp(a.dir, dayFilePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	enc := protocol.NewEncoder(bufio.NewWriter(tmp))
	writeDay(enc, day, events)
	if err := enc.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write day %d: %w", day, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync day %d: %w", day, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close day %d: %w", day, err)
	}
	if err := os.Rename(tmp.Name(), a.Path(day)); err != nil {
		return fmt.Errorf("rename day %d: %w", day, err)
	}
	return nil
}

// Load reads a stored day.
func (a *FileArchive) Load(_ context.Context, day int) ([]model.Event, error) {
	f, err := os.Open(a.Path(day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDayNotFound
		}
		return nil, fmt.Errorf("open day %d: %w", day, err)
	}
	defer f.Close()

	return readDay(protocol.NewDecoder(bufio.NewReader(f)), day)
}

// LastDay scans the directory for the highest series_<day>.dat.
func (a *FileArchive) LastDay(_ context.Context) (int, bool, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, false, fmt.Errorf("read data dir: %w", err)
	}

	last, found := 0, false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, dayFilePrefix) || !strings.HasSuffix(name, dayFileSuffix) {
			continue
		}
		day, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, dayFilePrefix), dayFileSuffix))
		if err != nil || day < 0 {
			continue
		}
		if !found || day > last {
			last, found = day, true
		}
	}
	return last, found, nil
}

func writeDay(e *protocol.Encoder, day int, events []model.Event) {
	e.WriteInt32(int32(day))
	e.WriteInt32(int32(len(events)))
	for _, ev := range events {
		e.WriteString(ev.Product)
		e.WriteInt64(ev.Quantity)
		e.WriteFloat64(ev.Price)
		e.WriteInt64(ev.Timestamp)
	}
}

func readDay(d *protocol.Decoder, want int) ([]model.Event, error) {
	day, err := d.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptDay, err)
	}
	if int(day) != want {
		return nil, fmt.Errorf("%w: file holds day %d, want %d", ErrCorruptDay, day, want)
	}
	count, err := d.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptDay, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: event count %d", ErrCorruptDay, count)
	}

	events := make([]model.Event, 0, min(int(count), 4096))
	for i := int32(0); i < count; i++ {
		ev, err := readEvent(d)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d of %d: %v", ErrCorruptDay, i, count, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func readEvent(d *protocol.Decoder) (ev model.Event, err error) {
	if ev.Product, err = d.ReadString(); err != nil {
		return ev, err
	}
	if ev.Quantity, err = d.ReadInt64(); err != nil {
		return ev, err
	}
	if ev.Price, err = d.ReadFloat64(); err != nil {
		return ev, err
	}
	ev.Timestamp, err = d.ReadInt64()
	return ev, err
}
