package bitalloc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/klauspost/compress/zstd"
)

const (
	snapshotVersion    = 1
	snapshotHeaderSize = 16

	// MaxSnapshotCapacity is the largest capacity, in bits, accepted from a
	// snapshot. It bounds the bitmap a corrupt header can make us allocate.
	MaxSnapshotCapacity = 1 << 36
)

var snapshotMagic = [4]byte{'B', 'T', 'A', 'L'}

// Snapshot captures the allocated bits of an Allocator for export/import.
type Snapshot struct {
	Capacity  uint64            // requested capacity in bits
	WordWidth WordWidth         // bitmap word width
	Allocated *roaring64.Bitmap // indices of allocated bits
}

// Snapshot copies the allocator's state. Words are read one at a time, so
// concurrent allocations or releases may be partially reflected.
func (a *Allocator) Snapshot() *Snapshot {
	rb := roaring64.New()
	width := uint64(a.width)
	for w := range a.words.count() {
		v := a.words.load(w)
		if v == (uint128{}) {
			continue
		}
		for bit := range uint(a.width) {
			if v.bit(bit) {
				rb.Add(uint64(w)*width + uint64(bit))
			}
		}
	}
	return &Snapshot{
		Capacity:  a.capacity,
		WordWidth: a.width,
		Allocated: rb,
	}
}

// NewFromSnapshot constructs an Allocator holding the snapshot's allocations.
// Options are applied after the snapshot's word width, which cannot be
// overridden.
func NewFromSnapshot(s *Snapshot, opts ...Option) (*Allocator, error) {
	if s == nil || s.Allocated == nil {
		return nil, fmt.Errorf("%w: incomplete snapshot", ErrInvalidSnapshot)
	}
	if !s.WordWidth.valid() {
		return nil, fmt.Errorf("%w: unsupported word width %d", ErrInvalidSnapshot, s.WordWidth)
	}
	if err := checkSnapshotCapacity(s.Capacity, s.WordWidth); err != nil {
		return nil, err
	}

	a := New(s.Capacity, append(opts[:len(opts):len(opts)], WithWordWidth(s.WordWidth))...)

	// Rebuild words before the allocator is shared, no CAS needed
	vals := make([]uint128, a.words.count())
	it := s.Allocated.Iterator()
	for it.HasNext() {
		idx := it.Next()
		if idx >= a.length {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, &IndexError{Index: idx, Len: a.length})
		}
		w, bit := a.locate(idx)
		vals[w] = vals[w].setBit(bit)
	}

	first := len(vals)
	for w, v := range vals {
		a.words.store(w, v)
		if v != a.full && w < first {
			first = w
		}
	}
	a.hint.Store(packHint(first, 0))

	return a, nil
}

// WriteTo writes the snapshot as a fixed header followed by a zstd-compressed
// roaring bitmap.
func (s *Snapshot) WriteTo(w io.Writer) (int64, error) {
	if s.Allocated == nil || !s.WordWidth.valid() {
		return 0, fmt.Errorf("%w: incomplete snapshot", ErrInvalidSnapshot)
	}

	var hdr [snapshotHeaderSize]byte
	copy(hdr[:4], snapshotMagic[:])
	hdr[4] = snapshotVersion
	hdr[5] = uint8(s.WordWidth)
	binary.LittleEndian.PutUint64(hdr[8:], s.Capacity)

	cw := &countingWriter{w: w}
	if _, err := cw.Write(hdr[:]); err != nil {
		return cw.n, err
	}

	enc, err := zstd.NewWriter(cw)
	if err != nil {
		return cw.n, err
	}
	if _, err := s.Allocated.WriteTo(enc); err != nil {
		_ = enc.Close()
		return cw.n, err
	}
	if err := enc.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadSnapshot decodes a snapshot written by Snapshot.WriteTo.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var hdr [snapshotHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrInvalidSnapshot, err)
	}
	if [4]byte(hdr[:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidSnapshot, hdr[:4])
	}
	if hdr[4] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, hdr[4])
	}
	width := WordWidth(hdr[5])
	if !width.valid() {
		return nil, fmt.Errorf("%w: unsupported word width %d", ErrInvalidSnapshot, width)
	}
	capacity := binary.LittleEndian.Uint64(hdr[8:])
	if err := checkSnapshotCapacity(capacity, width); err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	defer dec.Close()

	rb := roaring64.New()
	if _, err := rb.ReadFrom(dec); err != nil {
		return nil, fmt.Errorf("%w: decoding bitmap: %w", ErrInvalidSnapshot, err)
	}

	return &Snapshot{
		Capacity:  capacity,
		WordWidth: width,
		Allocated: rb,
	}, nil
}

// checkSnapshotCapacity rejects capacities New would panic on or that exceed
// MaxSnapshotCapacity.
func checkSnapshotCapacity(capacity uint64, width WordWidth) error {
	if capacity > MaxSnapshotCapacity || wordCount(capacity, width) > maxWords {
		return fmt.Errorf("%w: capacity %d exceeds limit %d", ErrInvalidSnapshot, capacity, uint64(MaxSnapshotCapacity))
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
