package acquisition

import (
	"errors"
	"sync"
	"testing"

	"github.com/Kosmasu/EEG-streamer/internal/board"
)

func chunkOf(channels, samples int, value float64) board.Chunk {
	c := board.NewChunk(channels, samples)
	for _, row := range c.Data {
		for i := range row {
			row[i] = value
		}
	}
	return c
}

func TestBuffer_AppendCount(t *testing.T) {
	b := NewBuffer()
	sizes := []int{256, 12, 0, 99, 1}

	want := 0
	for _, n := range sizes {
		if err := b.Append(chunkOf(6, n, 1)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		want += n
	}

	if b.TotalSamples() != want {
		t.Errorf("Expected %d samples, got %d", want, b.TotalSamples())
	}
	// the empty chunk is not stored
	if b.Len() != 4 {
		t.Errorf("Expected 4 chunks, got %d", b.Len())
	}

	snap := b.Snapshot()
	sum := 0
	for _, c := range snap.Chunks {
		sum += c.Samples()
	}
	if sum != snap.Total {
		t.Errorf("Snapshot total %d does not match chunk sum %d", snap.Total, sum)
	}
}

func TestBuffer_Empty(t *testing.T) {
	b := NewBuffer()
	snap := b.Snapshot()
	if !snap.Empty() || snap.Total != 0 || len(snap.Chunks) != 0 {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

func TestBuffer_Freeze(t *testing.T) {
	b := NewBuffer()
	b.Append(chunkOf(2, 10, 1))
	b.Freeze()

	if !b.Frozen() {
		t.Error("Expected buffer to be frozen")
	}
	if err := b.Append(chunkOf(2, 10, 1)); !errors.Is(err, ErrFrozen) {
		t.Errorf("Expected ErrFrozen, got: %v", err)
	}
	if b.TotalSamples() != 10 {
		t.Errorf("Expected frozen total 10, got %d", b.TotalSamples())
	}
}

func TestBuffer_SnapshotIsolated(t *testing.T) {
	b := NewBuffer()
	b.Append(chunkOf(2, 5, 1))
	snap := b.Snapshot()

	// appending to a snapshot must not leak into the buffer
	_ = append(snap.Chunks, chunkOf(2, 7, 9))
	b.Append(chunkOf(2, 3, 2))

	after := b.Snapshot()
	if after.Chunks[1].Samples() != 3 || after.Chunks[1].Data[0][0] != 2 {
		t.Errorf("Expected buffer's own second chunk, got %v", after.Chunks[1].Data[0])
	}
	if snap.Total != 5 || len(snap.Chunks) != 1 {
		t.Errorf("Expected old snapshot unchanged, got total %d with %d chunks", snap.Total, len(snap.Chunks))
	}
}

func TestBuffer_ConcurrentReaders(t *testing.T) {
	b := NewBuffer()
	const chunks = 2000

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				snap := b.Snapshot()
				if snap.Total < last {
					errs <- "total decreased"
					return
				}
				sum := 0
				for _, c := range snap.Chunks {
					sum += c.Samples()
				}
				if sum != snap.Total {
					errs <- "total does not match visible chunks"
					return
				}
				last = snap.Total

				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	for i := 0; i < chunks; i++ {
		if err := b.Append(chunkOf(3, 1+i%7, float64(i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	close(done)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	if b.Len() != chunks {
		t.Errorf("Expected %d chunks, got %d", chunks, b.Len())
	}
}
