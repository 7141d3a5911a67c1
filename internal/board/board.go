package board

import (
	"fmt"
	"strings"

	"github.com/Kosmasu/EEG-streamer/internal/config"
)

// Type identifies a board source implementation
type Type string

const (
	TypeSynthetic Type = "synthetic"
	TypeSerial    Type = "serial"
)

// Source is a polling-based biosignal board.
// Poll never blocks: it returns whatever samples accumulated since the
// previous call, possibly none.
type Source interface {
	Prepare() error
	StartStream() error
	Poll() (Chunk, error)
	StopStream() error
	Release() error

	SamplingRate() int
	EEGChannels() []int
}

// Chunk is one poll's worth of samples, one row per board channel.
// A chunk must not be modified once handed to a buffer.
type Chunk struct {
	Data [][]float64
}

// NewChunk allocates a zeroed chunk of the given shape
func NewChunk(channels, samples int) Chunk {
	data := make([][]float64, channels)
	for i := range data {
		data[i] = make([]float64, samples)
	}
	return Chunk{Data: data}
}

// Channels returns the number of rows
func (c Chunk) Channels() int {
	return len(c.Data)
}

// Samples returns the number of columns
func (c Chunk) Samples() int {
	if len(c.Data) == 0 {
		return 0
	}
	return len(c.Data[0])
}

// Empty reports whether the chunk carries no samples
func (c Chunk) Empty() bool {
	return c.Samples() == 0
}

// HardwareError reports a failed board operation
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("board %s failed: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Selection is the ordered subset of channels that carries EEG, with a
// label per channel.
type Selection struct {
	Indices []int
	Labels  []string
}

// SelectionFromConfig builds the channel selection of a board profile
func SelectionFromConfig(cfg *config.BoardConfig) Selection {
	sel := Selection{
		Indices: make([]int, len(cfg.Channels)),
		Labels:  make([]string, len(cfg.Channels)),
	}
	for i, ch := range cfg.Channels {
		sel.Indices[i] = ch.Index
		sel.Labels[i] = ch.Label
	}
	return sel
}

// Len returns the number of selected channels
func (s Selection) Len() int {
	return len(s.Indices)
}

// Validate checks the selection against a board with total channels
func (s Selection) Validate(total int) error {
	if len(s.Indices) != len(s.Labels) {
		return fmt.Errorf("channel selection has %d indices but %d labels", len(s.Indices), len(s.Labels))
	}
	if len(s.Indices) == 0 {
		return fmt.Errorf("channel selection is empty")
	}
	for i, idx := range s.Indices {
		if idx < 0 || idx >= total {
			return fmt.Errorf("channel %q index %d out of range [0, %d)", s.Labels[i], idx, total)
		}
	}
	return nil
}

// New creates the board source described by a board profile
func New(cfg *config.BoardConfig) (Source, error) {
	switch Type(strings.ToLower(cfg.Type)) {
	case TypeSynthetic, "":
		return NewSyntheticBoard(cfg.SamplingRate, cfg.TotalChannels, SelectionFromConfig(cfg).Indices), nil
	case TypeSerial:
		return NewSerialBoard(SerialOptions{
			PortName:      cfg.Port,
			BaudRate:      cfg.BaudRate,
			SamplingRate:  cfg.SamplingRate,
			TotalChannels: cfg.TotalChannels,
			EEGChannels:   SelectionFromConfig(cfg).Indices,
		}), nil
	default:
		return nil, fmt.Errorf("unknown board type: %s", cfg.Type)
	}
}

// AvailableTypes returns the board types this build supports
func AvailableTypes() []Type {
	return []Type{TypeSynthetic, TypeSerial}
}
