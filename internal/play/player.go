package play

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// NoMusic disables background music for a session
const NoMusic = "none"

const (
	speakerRate     = beep.SampleRate(44100)
	resampleQuality = 4
)

var supportedExts = map[string]bool{
	".mp3": true,
	".wav": true,
}

// Track is a music file that can be played during a session
type Track struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
}

// Player plays music files from a directory through the default audio device
type Player struct {
	dir string

	mu       sync.Mutex
	initErr  error
	initOnce sync.Once
	current  beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	playing  string
}

func New(dir string) *Player {
	return &Player{dir: dir}
}

func (p *Player) Dir() string {
	return p.dir
}

// Tracks lists the playable files in the music directory, sorted by name
func (p *Player) Tracks() ([]Track, error) {
	entries, err := os.ReadDir(p.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read music directory: %w", err)
	}

	var tracks []Track
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !supportedExts[ext] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", entry.Name(), "error", err)
			continue
		}
		tracks = append(tracks, Track{
			Name:      entry.Name(),
			Path:      filepath.Join(p.dir, entry.Name()),
			Extension: strings.TrimPrefix(ext, "."),
			Size:      info.Size(),
		})
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].Name < tracks[j].Name
	})
	return tracks, nil
}

// IsNone reports whether name selects no music
func IsNone(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, NoMusic) || strings.EqualFold(name, "no music")
}

// Resolve returns the path of the named track. An empty path means no music.
func (p *Player) Resolve(name string) (string, error) {
	if IsNone(name) {
		return "", nil
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid music name %q", name)
	}
	if !supportedExts[strings.ToLower(filepath.Ext(name))] {
		return "", fmt.Errorf("unsupported music format %q (use .mp3 or .wav)", name)
	}

	path := filepath.Join(p.dir, name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return "", fmt.Errorf("music file not found: %s", name)
	}
	return path, nil
}

// Play starts the named track in the background, replacing any track
// already playing. Playing NoMusic only stops the current track.
func (p *Player) Play(name string) error {
	path, err := p.Resolve(name)
	if err != nil {
		return err
	}
	p.Stop()
	if path == "" {
		return nil
	}

	streamer, format, err := decode(path)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}

	p.initOnce.Do(func() {
		p.initErr = speaker.Init(speakerRate, speakerRate.N(time.Second/10))
	})
	if p.initErr != nil {
		streamer.Close()
		return fmt.Errorf("failed to open audio output: %w", p.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		s = beep.Resample(resampleQuality, format.SampleRate, speakerRate, streamer)
	}
	ctrl := &beep.Ctrl{Streamer: s}

	p.mu.Lock()
	p.current = streamer
	p.ctrl = ctrl
	p.playing = name
	p.mu.Unlock()

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		slog.Debug("Music finished", "track", name)
	})))
	slog.Info("Music started", "track", name, "sample_rate", int(format.SampleRate))
	return nil
}

// Stop halts playback. It is safe to call when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	current, ctrl, name := p.current, p.ctrl, p.playing
	p.current, p.ctrl, p.playing = nil, nil, ""
	p.mu.Unlock()

	if current == nil {
		return
	}

	speaker.Lock()
	ctrl.Streamer = nil
	speaker.Unlock()
	speaker.Clear()

	if err := current.Close(); err != nil {
		slog.Warn("Failed to close music stream", "track", name, "error", err)
	}
	slog.Debug("Music stopped", "track", name)
}

// Playing returns the track currently playing, if any
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		err = fmt.Errorf("unsupported format %s", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return s, format, nil
}
