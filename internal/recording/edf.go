package recording

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// EDF (European Data Format) encoding. Data records span at most one
// second and their length divides the sample count, so a file holds
// exactly the samples of the recording.

const (
	edfDigitalMin = -32768
	edfDigitalMax = 32767

	edfHeaderBytes = 256
	edfSignalBytes = 256

	edfPhysicalDimension = "uV"
)

// Header is the part of an EDF header needed to describe a recording
type Header struct {
	Version        string
	PatientID      string
	RecordingID    string
	StartTime      time.Time
	HeaderBytes    int
	DataRecords    int
	RecordDuration time.Duration
	Signals        []SignalHeader
}

// SignalHeader describes one signal of an EDF file
type SignalHeader struct {
	Label             string
	TransducerType    string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
}

// SamplingRate returns the sampling rate of the first signal in Hz
func (h *Header) SamplingRate() float64 {
	if len(h.Signals) == 0 || h.RecordDuration <= 0 {
		return 0
	}
	return float64(h.Signals[0].SamplesPerRecord) * float64(time.Second) / float64(h.RecordDuration)
}

// Samples returns the number of samples stored per signal
func (h *Header) Samples() int {
	if len(h.Signals) == 0 {
		return 0
	}
	return h.DataRecords * h.Signals[0].SamplesPerRecord
}

// Duration returns the time spanned by all data records
func (h *Header) Duration() time.Duration {
	return time.Duration(h.DataRecords) * h.RecordDuration
}

// Labels returns the signal labels in file order
func (h *Header) Labels() []string {
	labels := make([]string, len(h.Signals))
	for i, s := range h.Signals {
		labels[i] = s.Label
	}
	return labels
}

// WriteEDF encodes rec as an EDF file
func WriteEDF(w io.Writer, rec *Recording, recordingID string) error {
	if rec.SamplingRate <= 0 {
		return fmt.Errorf("invalid sampling rate %d", rec.SamplingRate)
	}
	if len(rec.Data) != len(rec.Labels) {
		return fmt.Errorf("recording has %d rows but %d labels", len(rec.Data), len(rec.Labels))
	}

	samples := rec.Samples()
	perRecord, seconds := recordLayout(samples, rec.SamplingRate)
	records := (samples + perRecord - 1) / perRecord
	ns := len(rec.Data)

	signals := make([]SignalHeader, ns)
	for i, row := range rec.Data {
		lo, hi := physicalRange(row)
		signals[i] = SignalHeader{
			Label:             rec.Labels[i],
			TransducerType:    "AgAgCl electrode",
			PhysicalDimension: edfPhysicalDimension,
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        edfDigitalMin,
			DigitalMax:        edfDigitalMax,
			SamplesPerRecord:  perRecord,
		}
	}

	h := &Header{
		Version:        "0",
		PatientID:      "X X X X",
		RecordingID:    recordingID,
		StartTime:      rec.StartTime,
		HeaderBytes:    edfHeaderBytes + ns*edfSignalBytes,
		DataRecords:    records,
		RecordDuration: time.Duration(math.Round(seconds * float64(time.Second))),
		Signals:        signals,
	}

	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, h); err != nil {
		return fmt.Errorf("error writing EDF header: %w", err)
	}

	digital := make([]int16, perRecord)
	for r := 0; r < records; r++ {
		for i, row := range rec.Data {
			for k := range digital {
				n := r*perRecord + k
				v := 0.0
				if n < samples {
					v = row[n] * MicrovoltsPerVolt
				}
				digital[k] = toDigital(v, signals[i])
			}
			if err := binary.Write(bw, binary.LittleEndian, digital); err != nil {
				return fmt.Errorf("error writing EDF record %d: %w", r, err)
			}
		}
	}

	return bw.Flush()
}

// ReadHeader decodes the header of an EDF file
func ReadHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, edfHeaderBytes)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("error reading EDF header: %w", err)
	}

	f := &fieldReader{buf: fixed}
	h := &Header{
		Version:     f.next(8),
		PatientID:   f.next(80),
		RecordingID: f.next(80),
	}
	startDate, startTime := f.next(8), f.next(8)
	headerBytes, _ := f.next(8), f.next(44)
	records, duration, ns := f.next(8), f.next(8), f.next(4)

	var err error
	if h.StartTime, err = parseEDFTime(startDate, startTime); err != nil {
		return nil, err
	}
	if h.HeaderBytes, err = strconv.Atoi(headerBytes); err != nil {
		return nil, fmt.Errorf("invalid header size %q: %w", headerBytes, err)
	}
	if h.DataRecords, err = strconv.Atoi(records); err != nil {
		return nil, fmt.Errorf("invalid data record count %q: %w", records, err)
	}
	seconds, err := strconv.ParseFloat(duration, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid data record duration %q: %w", duration, err)
	}
	h.RecordDuration = time.Duration(math.Round(seconds * float64(time.Second)))
	count, err := strconv.Atoi(ns)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid signal count %q", ns)
	}

	signalBuf := make([]byte, count*edfSignalBytes)
	if _, err := io.ReadFull(r, signalBuf); err != nil {
		return nil, fmt.Errorf("error reading EDF signal headers: %w", err)
	}

	h.Signals = make([]SignalHeader, count)
	sf := &fieldReader{buf: signalBuf}
	column := func(width int) []string {
		out := make([]string, count)
		for i := range out {
			out[i] = sf.next(width)
		}
		return out
	}
	labels, transducers, dims := column(16), column(80), column(8)
	physMins, physMaxs, digMins, digMaxs := column(8), column(8), column(8), column(8)
	prefilters, spr := column(80), column(8)

	for i := range h.Signals {
		s := SignalHeader{
			Label:             labels[i],
			TransducerType:    transducers[i],
			PhysicalDimension: dims[i],
			Prefiltering:      prefilters[i],
		}
		if s.PhysicalMin, err = strconv.ParseFloat(physMins[i], 64); err != nil {
			return nil, fmt.Errorf("signal %d: invalid physical minimum %q", i, physMins[i])
		}
		if s.PhysicalMax, err = strconv.ParseFloat(physMaxs[i], 64); err != nil {
			return nil, fmt.Errorf("signal %d: invalid physical maximum %q", i, physMaxs[i])
		}
		if s.DigitalMin, err = strconv.Atoi(digMins[i]); err != nil {
			return nil, fmt.Errorf("signal %d: invalid digital minimum %q", i, digMins[i])
		}
		if s.DigitalMax, err = strconv.Atoi(digMaxs[i]); err != nil {
			return nil, fmt.Errorf("signal %d: invalid digital maximum %q", i, digMaxs[i])
		}
		if s.SamplesPerRecord, err = strconv.Atoi(spr[i]); err != nil {
			return nil, fmt.Errorf("signal %d: invalid samples per record %q", i, spr[i])
		}
		h.Signals[i] = s
	}

	return h, nil
}

func writeHeader(w io.Writer, h *Header) error {
	var sb strings.Builder
	sb.WriteString(field(h.Version, 8))
	sb.WriteString(field(h.PatientID, 80))
	sb.WriteString(field(h.RecordingID, 80))
	sb.WriteString(field(h.StartTime.Format("02.01.06"), 8))
	sb.WriteString(field(h.StartTime.Format("15.04.05"), 8))
	sb.WriteString(field(strconv.Itoa(h.HeaderBytes), 8))
	sb.WriteString(field("", 44))
	sb.WriteString(field(strconv.Itoa(h.DataRecords), 8))
	sb.WriteString(field(formatNumber(h.RecordDuration.Seconds()), 8))
	sb.WriteString(field(strconv.Itoa(len(h.Signals)), 4))

	columns := []func(s SignalHeader) (string, int){
		func(s SignalHeader) (string, int) { return s.Label, 16 },
		func(s SignalHeader) (string, int) { return s.TransducerType, 80 },
		func(s SignalHeader) (string, int) { return s.PhysicalDimension, 8 },
		func(s SignalHeader) (string, int) { return formatNumber(s.PhysicalMin), 8 },
		func(s SignalHeader) (string, int) { return formatNumber(s.PhysicalMax), 8 },
		func(s SignalHeader) (string, int) { return strconv.Itoa(s.DigitalMin), 8 },
		func(s SignalHeader) (string, int) { return strconv.Itoa(s.DigitalMax), 8 },
		func(s SignalHeader) (string, int) { return s.Prefiltering, 80 },
		func(s SignalHeader) (string, int) { return strconv.Itoa(s.SamplesPerRecord), 8 },
		func(s SignalHeader) (string, int) { return "", 32 },
	}
	for _, col := range columns {
		for _, s := range h.Signals {
			v, width := col(s)
			sb.WriteString(field(v, width))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// recordLayout picks the samples per data record and the record duration.
// The record length divides samples and its duration is written exactly in
// the 8 character header field; the longest such record up to one second
// wins. When no divisor qualifies the whole recording is a single record.
func recordLayout(samples, rate int) (int, float64) {
	if samples <= 0 {
		return rate, 1
	}
	for d := min(samples, rate); d >= 1; d-- {
		if samples%d != 0 {
			continue
		}
		secs := float64(d) / float64(rate)
		if v, err := strconv.ParseFloat(formatNumber(secs), 64); err == nil && v == secs {
			return d, secs
		}
	}
	return samples, float64(samples) / float64(rate)
}

// physicalRange returns integral µV bounds enclosing row, never empty
func physicalRange(row []float64) (float64, float64) {
	if len(row) == 0 {
		return -1, 1
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range row {
		uv := v * MicrovoltsPerVolt
		lo = math.Min(lo, uv)
		hi = math.Max(hi, uv)
	}
	lo, hi = math.Floor(math.Min(lo, 0)), math.Ceil(math.Max(hi, 0))
	if hi-lo < 1 {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}

func toDigital(uv float64, s SignalHeader) int16 {
	scale := float64(s.DigitalMax-s.DigitalMin) / (s.PhysicalMax - s.PhysicalMin)
	d := math.Round((uv-s.PhysicalMin)*scale) + float64(s.DigitalMin)
	if d < float64(s.DigitalMin) {
		d = float64(s.DigitalMin)
	}
	if d > float64(s.DigitalMax) {
		d = float64(s.DigitalMax)
	}
	return int16(d)
}

// field left-aligns s in an ASCII field of width bytes
func field(s string, width int) string {
	b := []byte(s)
	for i, c := range b {
		if c < 32 || c > 126 {
			b[i] = '_'
		}
	}
	if len(b) > width {
		return string(b[:width])
	}
	return string(b) + strings.Repeat(" ", width-len(b))
}

// formatNumber renders f in at most 8 characters
func formatNumber(f float64) string {
	for prec := -1; prec < 8; prec++ {
		var s string
		if prec < 0 {
			s = strconv.FormatFloat(f, 'f', -1, 64)
		} else {
			s = strconv.FormatFloat(f, 'f', 7-prec, 64)
		}
		if len(s) <= 8 {
			return s
		}
	}
	return strconv.FormatFloat(math.Round(f), 'f', 0, 64)
}

func parseEDFTime(date, clock string) (time.Time, error) {
	t, err := time.ParseInLocation("02.01.06 15.04.05", date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}

type fieldReader struct {
	buf []byte
	off int
}

func (f *fieldReader) next(width int) string {
	s := string(f.buf[f.off : f.off+width])
	f.off += width
	return strings.TrimSpace(s)
}
