package recording

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func testRecording(samples int) *Recording {
	rec := &Recording{
		Labels:       []string{"TP9", "AF7"},
		SamplingRate: 4,
		StartTime:    time.Date(2024, 3, 9, 14, 5, 30, 0, time.Local),
	}
	for ch := range rec.Labels {
		row := make([]float64, samples)
		for i := range row {
			row[i] = float64((ch+1)*10+i) / MicrovoltsPerVolt
		}
		rec.Data = append(rec.Data, row)
	}
	return rec
}

func TestWriteEDF_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEDF(&buf, testRecording(10), "session one"); err != nil {
		t.Fatalf("WriteEDF failed: %v", err)
	}

	h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	if h.Version != "0" || h.RecordingID != "session one" {
		t.Errorf("Identification incorrect: %+v", h)
	}
	if h.HeaderBytes != 256*3 {
		t.Errorf("Expected header of %d bytes, got %d", 256*3, h.HeaderBytes)
	}
	// 10 samples at 4 Hz are stored as 5 records of 0.5 s
	if h.DataRecords != 5 || h.RecordDuration != 500*time.Millisecond {
		t.Errorf("Expected 5 records of 0.5s, got %d of %s", h.DataRecords, h.RecordDuration)
	}
	if h.SamplingRate() != 4 {
		t.Errorf("Expected 4 Hz, got %v", h.SamplingRate())
	}
	if h.Samples() != 10 || h.Duration() != 2500*time.Millisecond {
		t.Errorf("Expected 10 samples over 2.5s, got %d over %s", h.Samples(), h.Duration())
	}
	if !h.StartTime.Equal(time.Date(2024, 3, 9, 14, 5, 30, 0, time.Local)) {
		t.Errorf("Start time incorrect: %s", h.StartTime)
	}
	if got := h.Labels(); len(got) != 2 || got[0] != "TP9" || got[1] != "AF7" {
		t.Errorf("Labels incorrect: %v", got)
	}

	s := h.Signals[1]
	if s.PhysicalDimension != "uV" || s.DigitalMin != -32768 || s.DigitalMax != 32767 || s.SamplesPerRecord != 2 {
		t.Errorf("Signal header incorrect: %+v", s)
	}
	if s.PhysicalMin > 0 || s.PhysicalMax < 29 {
		t.Errorf("Physical range [%v, %v] does not enclose the data", s.PhysicalMin, s.PhysicalMax)
	}

	wantSize := 256*3 + 10*2*2
	if buf.Len() != wantSize {
		t.Errorf("Expected file of %d bytes, got %d", wantSize, buf.Len())
	}
}

func TestWriteEDF_DataRoundTrip(t *testing.T) {
	rec := testRecording(6)
	var buf bytes.Buffer
	if err := WriteEDF(&buf, rec, "rt"); err != nil {
		t.Fatalf("WriteEDF failed: %v", err)
	}

	data := buf.Bytes()
	h, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	digital := make([]int16, (len(data)-h.HeaderBytes)/2)
	if err := binary.Read(bytes.NewReader(data[h.HeaderBytes:]), binary.LittleEndian, digital); err != nil {
		t.Fatalf("Failed to read samples: %v", err)
	}

	if len(digital) != 6*len(h.Signals) {
		t.Fatalf("Expected exactly 6 samples per signal, got %d values", len(digital))
	}

	// records are [TP9 x spr][AF7 x spr]
	spr := h.Signals[0].SamplesPerRecord
	for ch, s := range h.Signals {
		scale := (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
		for i := 0; i < 6; i++ {
			d := digital[(i/spr)*spr*len(h.Signals)+ch*spr+i%spr]
			uv := (float64(d)-float64(s.DigitalMin))*scale + s.PhysicalMin
			want := rec.Data[ch][i] * MicrovoltsPerVolt
			if math.Abs(uv-want) > scale {
				t.Errorf("Signal %d sample %d: expected %v µV, got %v", ch, i, want, uv)
			}
		}
	}
}

func TestWriteEDF_ExactLength(t *testing.T) {
	tests := []struct {
		samples, rate int
		wantSPR       int
	}{
		{512, 256, 256},
		{400, 256, 200},
		{400, 250, 200},
		{10, 256, 10},     // no record length with an exact 8 character duration
		{1009, 256, 1009}, // prime count: one record
	}

	for _, tt := range tests {
		rec := &Recording{Data: [][]float64{make([]float64, tt.samples)}, Labels: []string{"Fz"}, SamplingRate: tt.rate}
		var buf bytes.Buffer
		if err := WriteEDF(&buf, rec, "len"); err != nil {
			t.Fatalf("WriteEDF failed: %v", err)
		}
		h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadHeader failed: %v", err)
		}

		if h.Signals[0].SamplesPerRecord != tt.wantSPR {
			t.Errorf("%d @ %d Hz: expected %d samples per record, got %d", tt.samples, tt.rate, tt.wantSPR, h.Signals[0].SamplesPerRecord)
		}
		if h.Samples() != tt.samples {
			t.Errorf("%d @ %d Hz: file holds %d samples", tt.samples, tt.rate, h.Samples())
		}
		if buf.Len() != h.HeaderBytes+2*tt.samples {
			t.Errorf("%d @ %d Hz: expected %d data bytes, got %d", tt.samples, tt.rate, 2*tt.samples, buf.Len()-h.HeaderBytes)
		}
		want := time.Duration(tt.samples) * time.Second / time.Duration(tt.rate)
		if diff := h.Duration() - want; diff < -time.Microsecond || diff > time.Microsecond {
			t.Errorf("%d @ %d Hz: expected duration %s, got %s", tt.samples, tt.rate, want, h.Duration())
		}
		if math.Abs(h.SamplingRate()-float64(tt.rate)) > 1e-2 {
			t.Errorf("%d @ %d Hz: sampling rate read back as %v", tt.samples, tt.rate, h.SamplingRate())
		}
	}
}

func TestWriteEDF_FlatSignal(t *testing.T) {
	rec := &Recording{
		Data:         [][]float64{{0, 0, 0}},
		Labels:       []string{"C3"},
		SamplingRate: 3,
	}
	var buf bytes.Buffer
	if err := WriteEDF(&buf, rec, "flat"); err != nil {
		t.Fatalf("WriteEDF failed: %v", err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Signals[0].PhysicalMin >= h.Signals[0].PhysicalMax {
		t.Errorf("Expected non-empty physical range, got [%v, %v]", h.Signals[0].PhysicalMin, h.Signals[0].PhysicalMax)
	}
}

func TestWriteEDF_Invalid(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEDF(&buf, &Recording{SamplingRate: 0}, "x"); err == nil {
		t.Error("Expected error for zero sampling rate")
	}
	if err := WriteEDF(&buf, &Recording{SamplingRate: 4, Data: [][]float64{{1}}}, "x"); err == nil {
		t.Error("Expected error for missing labels")
	}
}

func TestReadHeader_Truncated(t *testing.T) {
	if _, err := ReadHeader(bytes.NewReader([]byte("0       short"))); err == nil {
		t.Error("Expected error for truncated header")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{-32768, "-32768"},
		{0.5, "0.5"},
		{123456.789, "123456.8"},
		{-1234567.5, "-1234568"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
