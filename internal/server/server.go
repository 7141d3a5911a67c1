package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Kosmasu/EEG-streamer/internal/config"
	"github.com/Kosmasu/EEG-streamer/internal/play"
	"github.com/Kosmasu/EEG-streamer/internal/recording"
	"github.com/Kosmasu/EEG-streamer/internal/render"
	"github.com/Kosmasu/EEG-streamer/internal/service"
)

// Server represents the web server for controlling recordings
type Server struct {
	service service.Service
	cfg     *config.Config
	port    string

	store  *recording.FileStore
	player *play.Player
	chart  *render.ChartRenderer
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status      string               `json:"status"`
	Message     string               `json:"message,omitempty"`
	Session     *service.SessionInfo `json:"session,omitempty"`
	LastOutcome *OutcomeInfo         `json:"last_outcome,omitempty"`
	Config      *ResolvedConfigInfo  `json:"resolved_config"`
}

// OutcomeInfo is the JSON form of a session outcome
type OutcomeInfo struct {
	Filename  string  `json:"filename"`
	Path      string  `json:"path,omitempty"`
	Samples   int     `json:"samples"`
	Seconds   float64 `json:"seconds"`
	Cancelled bool    `json:"cancelled"`
	Kind      string  `json:"kind,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ResolvedConfigInfo contains configuration information for the UI
type ResolvedConfigInfo struct {
	Board         string   `json:"board"`
	BoardType     string   `json:"board_type"`
	SamplingRate  int      `json:"sampling_rate"`
	Channels      []string `json:"channels"`
	OutputDir     string   `json:"output_dir"`
	MaxDuration   int      `json:"max_duration"`
	WindowSeconds int      `json:"window_seconds"`
}

// RecordingsResponse represents the JSON response for recordings endpoint
type RecordingsResponse struct {
	Recordings      []recording.FileInfo `json:"recordings"`
	TotalCount      int                  `json:"total_count"`
	OutputDirectory string               `json:"output_directory"`
}

// MusicResponse represents the JSON response for music endpoint
type MusicResponse struct {
	Tracks    []play.Track `json:"tracks"`
	NoMusic   string       `json:"no_music"`
	Directory string       `json:"directory"`
}

// New creates a new web server instance. player and chart may be nil.
func New(cfg *config.Config, svc service.Service, store *recording.FileStore, player *play.Player, chart *render.ChartRenderer) *Server {
	return &Server{
		service: svc,
		cfg:     cfg,
		port:    cfg.Server.Port,
		store:   store,
		player:  player,
		chart:   chart,
	}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/live.png", s.handleLive)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/recordings/info/", s.handleRecordingInfo)
	mux.HandleFunc("/api/recordings/download/", s.handleRecordingDownload)
	mux.HandleFunc("/api/music", s.handleMusic)
	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	localIP := getLocalIP()

	slog.Info("Starting EEG Streamer Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	return http.ListenAndServe(":"+s.port, s.Handler())
}

// handleIndex serves the control page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, indexHTML)
}

// handleStart validates the parameters and starts a session
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	params, err := parseParams(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, service.KindValidation, err.Error(), "operation", "start")
		return
	}

	slog.Debug("Start request received", "filename", params.Filename, "duration", params.Duration, "music", params.Music)

	info, err := s.service.Start(params)
	if err != nil {
		s.sendServiceError(w, err, "operation", "start", "filename", params.Filename)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Recording started",
		"session": info,
	})
}

// handleStop ends the running session and reports its outcome
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	outcome, err := s.service.Stop()
	if errors.Is(err, service.ErrNoSession) {
		s.sendErrorResponse(w, http.StatusConflict, "", "No recording in progress", "operation", "stop")
		return
	}

	response := map[string]interface{}{
		"success": err == nil,
		"message": outcomeMessage(outcome),
		"outcome": toOutcomeInfo(outcome),
	}
	if err != nil {
		response["kind"] = service.KindOf(err)
		response["error"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStatus returns the current status and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	status, session := s.service.Status()
	response := StatusResponse{
		Status:      string(status),
		Message:     s.generateStatusMessage(status, session),
		Session:     session,
		LastOutcome: toOutcomeInfo(s.service.LastOutcome()),
		Config:      s.getResolvedConfigInfo(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleLive serves the latest rendered window
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.chart == nil {
		http.Error(w, "Live view disabled", http.StatusNotFound)
		return
	}

	frame, rendered := s.chart.Latest()
	if len(frame) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", rendered.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Write(frame)
}

// handleConfig returns the resolved configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.getResolvedConfigInfo())
}

// handleRecordings lists saved recordings
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	files, err := s.store.List()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, service.KindPersistence,
			fmt.Sprintf("Failed to list recordings: %v", err), "operation", "list_recordings")
		return
	}
	if files == nil {
		files = []recording.FileInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RecordingsResponse{
		Recordings:      files,
		TotalCount:      len(files),
		OutputDirectory: s.store.Dir(),
	})
}

// handleRecordingInfo returns header information of one recording
func (s *Server) handleRecordingInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, "/api/recordings/info/")
	if !validFileName(filename) {
		s.sendErrorResponse(w, http.StatusBadRequest, service.KindValidation, "Invalid filename", "filename", filename)
		return
	}

	info, err := s.store.Inspect(filename)
	if err != nil {
		s.sendErrorResponse(w, http.StatusNotFound, service.KindPersistence, err.Error(), "filename", filename)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       true,
		"path":          info.Path,
		"seconds":       info.Duration.Seconds(),
		"samples":       info.Samples,
		"sampling_rate": info.SamplingRate,
		"channels":      info.Channels,
		"start_time":    info.StartTime,
	})
}

// handleRecordingDownload serves a saved recording as an attachment
func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, "/api/recordings/download/")
	if !validFileName(filename) {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	path, err := s.store.Open(filename)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

// handleMusic lists the tracks that can be played during a session
func (s *Server) handleMusic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	response := MusicResponse{Tracks: []play.Track{}, NoMusic: play.NoMusic}
	if s.player != nil {
		tracks, err := s.player.Tracks()
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to list music: %v", err))
			return
		}
		if tracks != nil {
			response.Tracks = tracks
		}
		response.Directory = s.player.Dir()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) getResolvedConfigInfo() *ResolvedConfigInfo {
	maxDuration := s.cfg.Recording.MaxDuration
	if maxDuration <= 0 {
		maxDuration = service.DefaultMaxDuration
	}
	return &ResolvedConfigInfo{
		Board:         s.cfg.BoardName,
		BoardType:     s.cfg.Board.Type,
		SamplingRate:  s.cfg.Board.SamplingRate,
		Channels:      s.cfg.ChannelLabels(),
		OutputDir:     s.cfg.Recording.Directory,
		MaxDuration:   maxDuration,
		WindowSeconds: s.cfg.Render.WindowSeconds,
	}
}

// generateStatusMessage creates appropriate status messages based on current state
func (s *Server) generateStatusMessage(status service.Status, session *service.SessionInfo) string {
	switch status {
	case service.StatusStandby:
		if o := s.service.LastOutcome(); o.Saved() {
			return outcomeMessage(o)
		}
		return ""
	case service.StatusRecording:
		if session != nil {
			return fmt.Sprintf("Recording in progress - %s (%.1f / %d s)", session.Filename, session.Elapsed().Seconds(), session.Duration)
		}
		return "Recording in progress"
	case service.StatusFinalizing:
		return "Saving recording"
	case service.StatusError:
		if errorDetails := s.service.LastError(); errorDetails != "" {
			return errorDetails
		}
		return "An error occurred during the operation"
	default:
		return ""
	}
}

func outcomeMessage(o *service.Outcome) string {
	switch {
	case o == nil:
		return ""
	case o.Saved() && o.Cancelled:
		return fmt.Sprintf("Recording stopped early, saved %.1f s to %s", o.Duration.Seconds(), o.Path)
	case o.Saved():
		return fmt.Sprintf("Recording saved to %s", o.Path)
	case o.Err != nil:
		return o.Err.Error()
	default:
		return "Recording ended without saving"
	}
}

func toOutcomeInfo(o *service.Outcome) *OutcomeInfo {
	if o == nil {
		return nil
	}
	info := &OutcomeInfo{
		Filename:  o.Filename,
		Path:      o.Path,
		Samples:   o.Samples,
		Seconds:   o.Duration.Seconds(),
		Cancelled: o.Cancelled,
	}
	if o.Err != nil {
		info.Kind = string(service.KindOf(o.Err))
		info.Error = o.Err.Error()
	}
	return info
}

// parseParams accepts a JSON body or form values
func parseParams(r *http.Request) (service.Params, error) {
	var p service.Params

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return p, fmt.Errorf("Invalid JSON body: %v", err)
		}
		return p, nil
	}

	if err := r.ParseForm(); err != nil {
		return p, fmt.Errorf("Failed to parse form")
	}
	p.Filename = r.FormValue("filename")
	p.Music = r.FormValue("music")
	if d := r.FormValue("duration"); d != "" {
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return p, fmt.Errorf("Duration must be a whole number of seconds")
		}
		p.Duration = n
	}
	return p, nil
}

// validFileName rejects empty names and path traversal
func validFileName(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.Contains(name, "/") && !strings.Contains(name, "\\")
}

var kindStatus = map[service.Kind]int{
	service.KindValidation:    http.StatusBadRequest,
	service.KindSessionActive: http.StatusConflict,
	service.KindHardwareStart: http.StatusBadGateway,
	service.KindHardwarePoll:  http.StatusBadGateway,
	service.KindEmptyCapture:  http.StatusUnprocessableEntity,
	service.KindPersistence:   http.StatusInternalServerError,
}

func (s *Server) sendServiceError(w http.ResponseWriter, err error, logContext ...interface{}) {
	kind := service.KindOf(err)
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	s.sendErrorResponse(w, code, kind, err.Error(), logContext...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, kind service.Kind, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode, "kind", kind}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	body := map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	}
	if kind != "" {
		body["kind"] = kind
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.DialTimeout("udp", "8.8.8.8:80", time.Second)
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
