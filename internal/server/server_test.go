package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/acquisition"
	"github.com/Kosmasu/EEG-streamer/internal/board"
	"github.com/Kosmasu/EEG-streamer/internal/config"
	"github.com/Kosmasu/EEG-streamer/internal/play"
	"github.com/Kosmasu/EEG-streamer/internal/recording"
	"github.com/Kosmasu/EEG-streamer/internal/render"
	"github.com/Kosmasu/EEG-streamer/internal/service"
)

// fakeService answers with canned values and remembers what it was asked
type fakeService struct {
	cfg      *config.Config
	status   service.Status
	session  *service.SessionInfo
	outcome  *service.Outcome
	startErr error
	stopErr  error
	lastErr  string
	started  []service.Params
}

func (f *fakeService) Validate(p service.Params) error { return nil }

func (f *fakeService) Start(p service.Params) (*service.SessionInfo, error) {
	f.started = append(f.started, p)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &service.SessionInfo{Filename: p.Filename, Duration: p.Duration, SamplingRate: 256}, nil
}

func (f *fakeService) Stop() (*service.Outcome, error) {
	if f.stopErr != nil {
		return f.outcome, f.stopErr
	}
	return f.outcome, nil
}

func (f *fakeService) Wait() *service.Outcome { return f.outcome }

func (f *fakeService) Status() (service.Status, *service.SessionInfo) {
	return f.status, f.session
}

func (f *fakeService) LastOutcome() *service.Outcome { return f.outcome }
func (f *fakeService) LastError() string             { return f.lastErr }
func (f *fakeService) Config() *config.Config        { return f.cfg }

func newTestServer(t *testing.T, svc *fakeService, chart *render.ChartRenderer) (*httptest.Server, *recording.FileStore, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Recording.Directory = filepath.Join(t.TempDir(), "recordings")
	cfg.Recording.MusicDirectory = filepath.Join(t.TempDir(), "musics")
	svc.cfg = cfg
	if svc.status == "" {
		svc.status = service.StatusStandby
	}

	store := recording.NewFileStore(cfg.Recording.Directory)
	player := play.New(cfg.Recording.MusicDirectory)
	ts := httptest.NewServer(New(cfg, svc, store, player, chart).Handler())
	t.Cleanup(ts.Close)
	return ts, store, cfg.Recording.MusicDirectory
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHandleStatus(t *testing.T) {
	svc := &fakeService{
		status:  service.StatusRecording,
		session: &service.SessionInfo{Filename: "alpha", Duration: 60, SamplingRate: 256, Samples: 512},
	}
	ts, _, _ := newTestServer(t, svc, nil)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}

	var status StatusResponse
	decodeBody(t, resp, &status)

	if status.Status != "RECORDING" {
		t.Errorf("Expected RECORDING, got %s", status.Status)
	}
	if status.Message != "Recording in progress - alpha (2.0 / 60 s)" {
		t.Errorf("Unexpected message: %s", status.Message)
	}
	if status.Session == nil || status.Session.Samples != 512 {
		t.Errorf("Expected session with 512 samples, got %+v", status.Session)
	}
	if status.Config == nil || status.Config.SamplingRate != 256 || len(status.Config.Channels) != 4 {
		t.Errorf("Unexpected config info: %+v", status.Config)
	}
}

func TestHandleStatus_Error(t *testing.T) {
	svc := &fakeService{
		status:  service.StatusError,
		lastErr: "Board stopped delivering data after 128 samples: link lost",
		outcome: &service.Outcome{Filename: "beta", Path: "/r/beta_raw.edf", Samples: 128, Err: errors.New("link lost")},
	}
	ts, _, _ := newTestServer(t, svc, nil)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	var status StatusResponse
	decodeBody(t, resp, &status)

	if status.Message != svc.lastErr {
		t.Errorf("Expected last error as message, got %s", status.Message)
	}
	if status.LastOutcome == nil || status.LastOutcome.Samples != 128 || status.LastOutcome.Error != "link lost" {
		t.Errorf("Unexpected last outcome: %+v", status.LastOutcome)
	}
}

func TestHandleStart_JSON(t *testing.T) {
	svc := &fakeService{}
	ts, _, _ := newTestServer(t, svc, nil)

	body := `{"duration": 30, "filename": "gamma", "music": "none"}`
	resp, err := http.Post(ts.URL+"/start", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /start failed: %v", err)
	}

	var result map[string]interface{}
	decodeBody(t, resp, &result)

	if resp.StatusCode != http.StatusOK || result["success"] != true {
		t.Errorf("Expected success, got %d %v", resp.StatusCode, result)
	}
	if len(svc.started) != 1 || svc.started[0] != (service.Params{Duration: 30, Filename: "gamma", Music: "none"}) {
		t.Errorf("Unexpected params passed to service: %+v", svc.started)
	}
}

func TestHandleStart_Form(t *testing.T) {
	svc := &fakeService{}
	ts, _, _ := newTestServer(t, svc, nil)

	resp, err := http.PostForm(ts.URL+"/start", url.Values{"duration": {" 45 "}, "filename": {"delta"}})
	if err != nil {
		t.Fatalf("POST /start failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if len(svc.started) != 1 || svc.started[0].Duration != 45 || svc.started[0].Filename != "delta" {
		t.Errorf("Unexpected params passed to service: %+v", svc.started)
	}
}

func TestHandleStart_Errors(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		body     string
		wantCode int
		wantKind string
	}{
		{"bad duration", nil, "duration=abc&filename=x", http.StatusBadRequest, "validation"},
		{"validation", realServiceError(t, service.Params{Duration: 0, Filename: "x"}), "duration=0&filename=x", http.StatusBadRequest, "validation"},
		{"untyped error", errors.New("boom"), "duration=5&filename=x", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, _ := newTestServer(t, &fakeService{startErr: tt.startErr}, nil)

			resp, err := http.Post(ts.URL+"/start", "application/x-www-form-urlencoded", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST /start failed: %v", err)
			}
			var result map[string]interface{}
			decodeBody(t, resp, &result)

			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if result["success"] != false || result["error"] == "" {
				t.Errorf("Expected error body, got %v", result)
			}
			kind, _ := result["kind"].(string)
			if kind != tt.wantKind {
				t.Errorf("Expected kind %q, got %q", tt.wantKind, kind)
			}
		})
	}
}

// realServiceError returns the error a real service gives for p
func realServiceError(t *testing.T, p service.Params) error {
	t.Helper()
	svc := service.New(config.Default(), service.Options{Store: recording.NewFileStore(t.TempDir())})
	err := svc.Validate(p)
	if err == nil {
		t.Fatalf("Expected %+v to be invalid", p)
	}
	return err
}

func TestHandleStart_MethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Get(ts.URL + "/start")
	if err != nil {
		t.Fatalf("GET /start failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestHandleStop(t *testing.T) {
	svc := &fakeService{
		outcome: &service.Outcome{Filename: "eps", Path: "/r/eps_raw.edf", Samples: 400, Duration: 1562500 * time.Microsecond, Cancelled: true},
	}
	ts, _, _ := newTestServer(t, svc, nil)

	resp, err := http.Post(ts.URL+"/stop", "", nil)
	if err != nil {
		t.Fatalf("POST /stop failed: %v", err)
	}
	var result struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		Outcome OutcomeInfo `json:"outcome"`
	}
	decodeBody(t, resp, &result)

	if !result.Success || result.Outcome.Samples != 400 || !result.Outcome.Cancelled {
		t.Errorf("Unexpected stop result: %+v", result)
	}
	if !strings.Contains(result.Message, "stopped early") {
		t.Errorf("Expected early stop message, got %s", result.Message)
	}
}

func TestHandleStop_NoSession(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeService{stopErr: service.ErrNoSession}, nil)

	resp, err := http.Post(ts.URL+"/stop", "", nil)
	if err != nil {
		t.Fatalf("POST /stop failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
}

func TestHandleRecordings(t *testing.T) {
	ts, store, _ := newTestServer(t, &fakeService{}, nil)

	rec := &recording.Recording{
		Data:         [][]float64{{0.00001, -0.00002, 0.00003, 0}},
		Labels:       []string{"TP9"},
		SamplingRate: 4,
		StartTime:    time.Now(),
	}
	if _, err := store.Save("zeta", rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/recordings")
	if err != nil {
		t.Fatalf("GET /api/recordings failed: %v", err)
	}
	var list RecordingsResponse
	decodeBody(t, resp, &list)

	if list.TotalCount != 1 || list.Recordings[0].Name != "zeta_raw.edf" {
		t.Fatalf("Unexpected recordings: %+v", list)
	}

	resp, err = http.Get(ts.URL + "/api/recordings/info/zeta_raw.edf")
	if err != nil {
		t.Fatalf("GET info failed: %v", err)
	}
	var info map[string]interface{}
	decodeBody(t, resp, &info)
	if info["sampling_rate"] != 4.0 || info["seconds"] != 1.0 {
		t.Errorf("Unexpected info: %v", info)
	}

	resp, err = http.Get(ts.URL + list.Recordings[0].DownloadURL)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	onDisk, _ := os.ReadFile(list.Recordings[0].Path)
	if resp.StatusCode != http.StatusOK || string(data) != string(onDisk) {
		t.Errorf("Downloaded file differs from saved file (status %d)", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "zeta_raw.edf") {
		t.Errorf("Unexpected Content-Disposition: %s", cd)
	}
}

func TestHandleRecordings_EmptyList(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Get(ts.URL + "/api/recordings")
	if err != nil {
		t.Fatalf("GET /api/recordings failed: %v", err)
	}
	var list RecordingsResponse
	decodeBody(t, resp, &list)
	if list.Recordings == nil || list.TotalCount != 0 {
		t.Errorf("Expected empty list, got %+v", list)
	}
}

func TestHandleDownload_Rejected(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeService{}, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/api/recordings/download/..%5Csecret", http.StatusBadRequest},
		{"/api/recordings/download/missing_raw.edf", http.StatusNotFound},
		{"/api/recordings/info/missing_raw.edf", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.code {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.code, resp.StatusCode)
		}
	}
}

func TestHandleMusic(t *testing.T) {
	ts, _, musicDir := newTestServer(t, &fakeService{}, nil)

	os.MkdirAll(musicDir, 0755)
	for _, name := range []string{"rain.wav", "calm.mp3", "notes.txt"} {
		os.WriteFile(filepath.Join(musicDir, name), []byte("x"), 0644)
	}

	resp, err := http.Get(ts.URL + "/api/music")
	if err != nil {
		t.Fatalf("GET /api/music failed: %v", err)
	}
	var music MusicResponse
	decodeBody(t, resp, &music)

	if music.NoMusic != play.NoMusic || music.Directory != musicDir {
		t.Errorf("Unexpected music response: %+v", music)
	}
	if len(music.Tracks) != 2 || music.Tracks[0].Name != "calm.mp3" || music.Tracks[1].Name != "rain.wav" {
		t.Errorf("Unexpected tracks: %+v", music.Tracks)
	}
}

func TestHandleLive(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeService{}, nil)
	resp, err := http.Get(ts.URL + "/live.png")
	if err != nil {
		t.Fatalf("GET /live.png failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 without chart, got %d", resp.StatusCode)
	}

	chart := render.NewChartRenderer(320, 200, "")
	ts, _, _ = newTestServer(t, &fakeService{}, chart)

	resp, err = http.Get(ts.URL + "/live.png")
	if err != nil {
		t.Fatalf("GET /live.png failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 before the first frame, got %d", resp.StatusCode)
	}

	buf := acquisition.NewBuffer()
	c := board.NewChunk(6, 64)
	for i := range c.Data[1] {
		c.Data[1][i] = float64(i)
	}
	buf.Append(c)
	sel := board.Selection{Indices: []int{1}, Labels: []string{"TP9"}}
	w, err := render.Trailing(buf.Snapshot(), sel, 256, 768)
	if err != nil {
		t.Fatalf("Trailing failed: %v", err)
	}
	if err := chart.Render(w); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	resp, err = http.Get(ts.URL + "/live.png")
	if err != nil {
		t.Fatalf("GET /live.png failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("Expected PNG frame, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestHandleIndex(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "<html") {
		t.Errorf("Expected control page, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestIndexPage_ListsNamesAsText(t *testing.T) {
	// recording and track names come from the filesystem and must not be parsed as markup
	if strings.Contains(indexHTML, "innerHTML") {
		t.Error("Expected the control page to build list entries without innerHTML")
	}
	for _, want := range []string{"a.textContent = r.name", "a.href = r.download_url"} {
		if !strings.Contains(indexHTML, want) {
			t.Errorf("Expected control page to contain %q", want)
		}
	}
}

func TestParseParams_InvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader("{"))
	r.Header.Set("Content-Type", "application/json")
	if _, err := parseParams(r); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestValidFileName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a_raw.edf", true},
		{"", false},
		{"../a_raw.edf", false},
		{"dir/a_raw.edf", false},
		{`dir\a_raw.edf`, false},
	}
	for _, tt := range tests {
		if got := validFileName(tt.name); got != tt.want {
			t.Errorf("validFileName(%q) = %v, expected %v", tt.name, got, tt.want)
		}
	}
}
