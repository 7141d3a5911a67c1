package acquisition

import (
	"errors"
	"sync/atomic"

	"github.com/Kosmasu/EEG-streamer/internal/board"
)

var ErrFrozen = errors.New("session buffer is frozen")

// Snapshot is an immutable view of a buffer: the chunks appended so far
// and their total sample count, published together.
type Snapshot struct {
	Chunks []board.Chunk
	Total  int
}

// Empty reports whether the snapshot holds no samples
func (s Snapshot) Empty() bool {
	return s.Total == 0
}

// Buffer is the append-only chunk store of one recording session.
//
// There is exactly one writer (the acquisition loop). Readers never take
// a lock: each Append publishes a new view with a single atomic store, and
// a view only ever references a prefix of the chunk array the writer
// extends, so the writer and any number of readers never touch the same
// slots.
type Buffer struct {
	view   atomic.Pointer[Snapshot]
	frozen atomic.Bool
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.view.Store(&Snapshot{})
	return b
}

// Append adds a chunk at the end of the buffer. Empty chunks are ignored.
// Must only be called from the single writer.
func (b *Buffer) Append(c board.Chunk) error {
	if b.frozen.Load() {
		return ErrFrozen
	}
	if c.Empty() {
		return nil
	}

	cur := b.view.Load()
	b.view.Store(&Snapshot{
		Chunks: append(cur.Chunks, c),
		Total:  cur.Total + c.Samples(),
	})
	return nil
}

// Snapshot returns the current view. The chunk slice is capped so that
// appending to it in the caller copies instead of writing into the
// buffer's array.
func (b *Buffer) Snapshot() Snapshot {
	cur := b.view.Load()
	n := len(cur.Chunks)
	return Snapshot{Chunks: cur.Chunks[:n:n], Total: cur.Total}
}

// TotalSamples returns the number of samples appended so far
func (b *Buffer) TotalSamples() int {
	return b.view.Load().Total
}

// Len returns the number of chunks appended so far
func (b *Buffer) Len() int {
	return len(b.view.Load().Chunks)
}

// Freeze makes the buffer read-only; later appends fail with ErrFrozen
func (b *Buffer) Freeze() {
	b.frozen.Store(true)
}

// Frozen reports whether Freeze was called
func (b *Buffer) Frozen() bool {
	return b.frozen.Load()
}
