package recording

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	rawSuffix     = "_raw"
	edfExtension  = ".edf"
	metaExtension = ".yaml"
)

// Store persists assembled recordings
type Store interface {
	Save(name string, rec *Recording) (string, error)
}

// Metadata is written next to each EDF file
type Metadata struct {
	Name         string    `yaml:"name"`
	File         string    `yaml:"file"`
	StartTime    time.Time `yaml:"start_time"`
	SamplingRate int       `yaml:"sampling_rate"`
	Samples      int       `yaml:"samples"`
	Duration     float64   `yaml:"duration_seconds"`
	Channels     []string  `yaml:"channels"`
	Unit         string    `yaml:"unit"`
}

// FileInfo describes a saved recording
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	DownloadURL  string    `json:"download_url"`
}

// Info is the summary shown for a single recording
type Info struct {
	Path         string        `json:"path"`
	Duration     time.Duration `json:"duration"`
	SamplingRate float64       `json:"sampling_rate"`
	Channels     []string      `json:"channels"`
	StartTime    time.Time     `json:"start_time"`
	DataRecords  int           `json:"data_records"`
	Samples      int           `json:"samples"`
}

// FileStore writes recordings as <dir>/<name>_raw.edf
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the EDF path a recording called name is saved to
func (s *FileStore) Path(name string) (string, error) {
	clean := CleanFileName(name)
	if clean == "" {
		return "", fmt.Errorf("invalid recording name %q", name)
	}
	return filepath.Join(s.dir, clean+rawSuffix+edfExtension), nil
}

// Save writes rec, replacing any recording with the same name
func (s *FileStore) Save(name string, rec *Recording) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".recording-*"+edfExtension)
	if err != nil {
		return "", fmt.Errorf("failed to create recording file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteEDF(tmp, rec, name); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write recording file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move recording into place: %w", err)
	}

	meta := Metadata{
		Name:         name,
		File:         filepath.Base(path),
		StartTime:    rec.StartTime,
		SamplingRate: rec.SamplingRate,
		Samples:      rec.Samples(),
		Duration:     rec.Duration().Seconds(),
		Channels:     rec.Labels,
		Unit:         "V",
	}
	if err := writeMetadata(strings.TrimSuffix(path, edfExtension)+metaExtension, &meta); err != nil {
		// the EDF file is complete without it
		slog.Warn("Failed to write recording metadata", "path", path, "error", err)
	}

	slog.Info("Recording saved", "path", path, "samples", rec.Samples(), "channels", len(rec.Labels))
	return path, nil
}

// List returns saved recordings, newest first
func (s *FileStore) List() ([]FileInfo, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), rawSuffix+edfExtension) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to get file info for recording", "file", entry.Name(), "error", err)
			continue
		}

		files = append(files, FileInfo{
			Name:         entry.Name(),
			Path:         filepath.Join(s.dir, entry.Name()),
			Size:         info.Size(),
			SizeHuman:    FormatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			DownloadURL:  "/api/recordings/download/" + entry.Name(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Open returns the path of a saved recording. name may be the file name
// or the recording name it was saved under.
func (s *FileStore) Open(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid recording name %q", name)
	}

	candidates := []string{filepath.Join(s.dir, name)}
	if p, err := s.Path(name); err == nil {
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("recording not found: %s", name)
}

// Inspect reads the header of a saved recording
func (s *FileStore) Inspect(name string) (*Info, error) {
	path, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	return InspectFile(path)
}

// InspectFile reads the header of an EDF file at path
func InspectFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Info{
		Path:         path,
		Duration:     h.Duration(),
		SamplingRate: h.SamplingRate(),
		Channels:     h.Labels(),
		StartTime:    h.StartTime,
		DataRecords:  h.DataRecords,
		Samples:      h.Samples(),
	}, nil
}

func writeMetadata(path string, meta *Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadMetadata loads the sidecar written next to an EDF file
func ReadMetadata(edfPath string) (*Metadata, error) {
	data, err := os.ReadFile(strings.TrimSuffix(edfPath, edfExtension) + metaExtension)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid recording metadata: %w", err)
	}
	return &meta, nil
}

// CleanFileName keeps letters, digits, '-' and '_' and turns spaces into underscores
func CleanFileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
