package board

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial packet layout, little endian:
//
//	uint32 packet number | uint32 board timestamp (ms) | N x float32 readings (uV) | '\r' '\n'
//
// with N = total channels - 2. Row 0 of a chunk holds the packet number,
// rows 1..N the readings and the last row the board timestamp in seconds.
var StopSequence = []byte{'\r', '\n'}

const (
	packetHeaderSize  = 8
	serialReadTimeout = 5 * time.Millisecond
)

// OutOfSyncError is returned when a packet does not end with the stop sequence
type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("incorrect stop sequence detected: %v", e.ByteSequence)
}

// SerialOptions configures a SerialBoard
type SerialOptions struct {
	PortName      string
	BaudRate      int
	SamplingRate  int
	TotalChannels int
	EEGChannels   []int

	// Open defaults to serial.Open
	Open func(name string, mode *serial.Mode) (serial.Port, error)
}

// SerialBoard reads framed sample packets from a serial port in a
// background goroutine and hands them out on Poll.
type SerialBoard struct {
	opts       SerialOptions
	packetSize int

	port serial.Port

	mu      sync.Mutex
	pending [][]float64
	readErr error

	stop chan struct{}
	done chan struct{}
}

// NewSerialBoard creates a serial board; the port is opened by Prepare
func NewSerialBoard(opts SerialOptions) *SerialBoard {
	if opts.Open == nil {
		opts.Open = serial.Open
	}
	readings := opts.TotalChannels - 2
	if readings < 0 {
		readings = 0
	}
	return &SerialBoard{
		opts:       opts,
		packetSize: packetHeaderSize + 4*readings + len(StopSequence),
	}
}

// PacketSize returns the size of one framed packet in bytes
func (b *SerialBoard) PacketSize() int {
	return b.packetSize
}

func (b *SerialBoard) Prepare() error {
	if b.opts.TotalChannels < 3 {
		return fmt.Errorf("serial board needs at least 3 channels, got %d", b.opts.TotalChannels)
	}
	if b.port != nil {
		return errors.New("session already prepared")
	}

	port, err := b.opts.Open(b.opts.PortName, &serial.Mode{BaudRate: b.opts.BaudRate})
	if err != nil {
		return fmt.Errorf("error opening serial port %s: %w", b.opts.PortName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("error setting read timeout on %s: %w", b.opts.PortName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return fmt.Errorf("error resetting input buffer on %s: %w", b.opts.PortName, err)
	}

	b.port = port
	slog.Debug("Serial port opened", "port", b.opts.PortName, "baud_rate", b.opts.BaudRate)
	return nil
}

func (b *SerialBoard) StartStream() error {
	if b.port == nil {
		return errors.New("session not prepared")
	}
	if b.stop != nil {
		return errors.New("stream already started")
	}

	b.mu.Lock()
	b.pending = make([][]float64, b.opts.TotalChannels)
	b.readErr = nil
	b.mu.Unlock()

	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.readLoop()
	return nil
}

func (b *SerialBoard) Poll() (Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// samples read before a port failure are handed out first, the
	// error is reported by the following poll
	if len(b.pending) == 0 || len(b.pending[0]) == 0 {
		return Chunk{}, b.readErr
	}

	chunk := Chunk{Data: b.pending}
	b.pending = make([][]float64, b.opts.TotalChannels)
	return chunk, nil
}

func (b *SerialBoard) StopStream() error {
	if b.stop == nil {
		return errors.New("stream not started")
	}
	close(b.stop)
	<-b.done
	b.stop = nil
	b.done = nil
	return nil
}

func (b *SerialBoard) Release() error {
	if b.stop != nil {
		b.StopStream()
	}
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	if err != nil {
		return fmt.Errorf("error closing serial port %s: %w", b.opts.PortName, err)
	}
	return nil
}

func (b *SerialBoard) SamplingRate() int {
	return b.opts.SamplingRate
}

func (b *SerialBoard) EEGChannels() []int {
	return append([]int(nil), b.opts.EEGChannels...)
}

func (b *SerialBoard) readLoop() {
	defer close(b.done)

	buf := make([]byte, b.packetSize)
	if !b.resync() {
		return
	}

	for {
		select {
		case <-b.stop:
			slog.Debug("Exiting serial read loop", "port", b.opts.PortName)
			return
		default:
		}

		ok, err := b.readPacket(buf)
		if !ok {
			return
		}
		if err == nil {
			continue
		}

		var oosErr *OutOfSyncError
		if errors.As(err, &oosErr) {
			slog.Warn("Serial packet out of sync", "port", b.opts.PortName, "payload", oosErr.ByteSequence)
			if !b.resync() {
				return
			}
			continue
		}

		b.mu.Lock()
		b.readErr = fmt.Errorf("error reading serial port %s: %w", b.opts.PortName, err)
		b.mu.Unlock()
		return
	}
}

// readPacket fills buf with one packet and queues its samples. It reports
// false when the stream was stopped mid-read.
func (b *SerialBoard) readPacket(buf []byte) (bool, error) {
	count := 0
	for count < len(buf) {
		select {
		case <-b.stop:
			return false, nil
		default:
		}
		n, err := b.port.Read(buf[count:])
		if err != nil {
			return true, err
		}
		count += n
	}

	values, err := decodePacket(buf, b.opts.TotalChannels)
	if err != nil {
		return true, err
	}

	b.mu.Lock()
	for row, v := range values {
		b.pending[row] = append(b.pending[row], v)
	}
	b.mu.Unlock()
	return true, nil
}

// resync discards bytes up to and including the next stop sequence
func (b *SerialBoard) resync() bool {
	slog.Debug("Resyncing serial port", "port", b.opts.PortName)
	one := make([]byte, 1)
	last := StopSequence[len(StopSequence)-1]
	for {
		select {
		case <-b.stop:
			return false
		default:
		}
		n, err := b.port.Read(one)
		if err != nil {
			slog.Warn("Error while resyncing serial port", "port", b.opts.PortName, "error", err)
			b.mu.Lock()
			b.readErr = fmt.Errorf("error resyncing serial port %s: %w", b.opts.PortName, err)
			b.mu.Unlock()
			return false
		}
		if n == 1 && one[0] == last {
			return true
		}
	}
}

// decodePacket converts one framed packet into a column of a chunk
func decodePacket(packet []byte, totalChannels int) ([]float64, error) {
	readings := totalChannels - 2
	size := packetHeaderSize + 4*readings + len(StopSequence)
	if len(packet) != size {
		return nil, fmt.Errorf("packet length %d, want %d", len(packet), size)
	}
	if !bytes.Equal(packet[size-len(StopSequence):], StopSequence) {
		return nil, &OutOfSyncError{ByteSequence: append([]byte(nil), packet...)}
	}

	values := make([]float64, totalChannels)
	values[0] = float64(binary.LittleEndian.Uint32(packet[0:4]))
	for i := 0; i < readings; i++ {
		off := packetHeaderSize + 4*i
		values[i+1] = float64(math.Float32frombits(binary.LittleEndian.Uint32(packet[off : off+4])))
	}
	values[totalChannels-1] = float64(binary.LittleEndian.Uint32(packet[4:8])) / 1000
	return values, nil
}

// EncodePacket builds a framed packet, used by firmware simulators and tests
func EncodePacket(number, timestampMs uint32, readings []float32) []byte {
	buf := make([]byte, packetHeaderSize+4*len(readings), packetHeaderSize+4*len(readings)+len(StopSequence))
	binary.LittleEndian.PutUint32(buf[0:4], number)
	binary.LittleEndian.PutUint32(buf[4:8], timestampMs)
	for i, r := range readings {
		off := packetHeaderSize + 4*i
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(r))
	}
	return append(buf, StopSequence...)
}

// ListSerialPorts returns the serial ports visible on this machine
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
