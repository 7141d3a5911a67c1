package board

import (
	"errors"
	"math"
	"sync"
	"time"
)

// SyntheticBoard generates deterministic EEG-like signals paced by the
// wall clock. Row 0 carries a package counter and the last row a unix
// timestamp, the same layout hardware boards use.
type SyntheticBoard struct {
	rate  int
	total int
	eeg   []int
	now   func() time.Time

	mu        sync.Mutex
	prepared  bool
	streaming bool
	started   time.Time
	emitted   int
}

// NewSyntheticBoard creates a synthetic board
func NewSyntheticBoard(samplingRate, totalChannels int, eegChannels []int) *SyntheticBoard {
	return &SyntheticBoard{
		rate:  samplingRate,
		total: totalChannels,
		eeg:   append([]int(nil), eegChannels...),
		now:   time.Now,
	}
}

// SetClock replaces the clock the board paces itself by
func (b *SyntheticBoard) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *SyntheticBoard) Prepare() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 {
		return errors.New("sampling rate must be positive")
	}
	if b.prepared {
		return errors.New("session already prepared")
	}
	b.prepared = true
	return nil
}

func (b *SyntheticBoard) StartStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.prepared {
		return errors.New("session not prepared")
	}
	b.streaming = true
	b.started = b.now()
	b.emitted = 0
	return nil
}

func (b *SyntheticBoard) Poll() (Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.streaming {
		return Chunk{}, errors.New("stream not started")
	}

	elapsed := b.now().Sub(b.started)
	due := int(elapsed.Seconds()*float64(b.rate)) - b.emitted
	if due <= 0 {
		return Chunk{}, nil
	}

	chunk := NewChunk(b.total, due)
	for i := 0; i < due; i++ {
		n := b.emitted + i
		t := float64(n) / float64(b.rate)
		if !b.isEEG(0) {
			chunk.Data[0][i] = float64(n % 256)
		}
		for k, row := range b.eeg {
			if row < 0 || row >= b.total {
				continue
			}
			chunk.Data[row][i] = syntheticSample(k, t)
		}
		if last := b.total - 1; last > 0 && !b.isEEG(last) {
			chunk.Data[last][i] = float64(b.started.Unix()) + t
		}
	}
	b.emitted += due
	return chunk, nil
}

func (b *SyntheticBoard) StopStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.streaming {
		return errors.New("stream not started")
	}
	b.streaming = false
	return nil
}

func (b *SyntheticBoard) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streaming = false
	b.prepared = false
	return nil
}

func (b *SyntheticBoard) SamplingRate() int {
	return b.rate
}

func (b *SyntheticBoard) EEGChannels() []int {
	return append([]int(nil), b.eeg...)
}

func (b *SyntheticBoard) isEEG(row int) bool {
	for _, r := range b.eeg {
		if r == row {
			return true
		}
	}
	return false
}

// syntheticSample mixes an alpha and a beta component in microvolts,
// phase shifted per channel.
func syntheticSample(channel int, t float64) float64 {
	phase := float64(channel) * math.Pi / 4
	alpha := 20 * math.Sin(2*math.Pi*10*t+phase)
	beta := 5 * math.Sin(2*math.Pi*22*t+2*phase)
	return alpha + beta + float64(channel)*2
}
