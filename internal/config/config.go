package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBoardName = "synthetic"
	EnvPrefix        = "EEGSTREAM"
)

type ChannelConfig struct {
	Index int    `mapstructure:"index" yaml:"index"`
	Label string `mapstructure:"label" yaml:"label"`
}

type BoardConfig struct {
	Type          string          `mapstructure:"type" yaml:"type"` // "synthetic", "serial"
	Port          string          `mapstructure:"port" yaml:"port,omitempty"`
	BaudRate      int             `mapstructure:"baud_rate" yaml:"baud_rate,omitempty"`
	SamplingRate  int             `mapstructure:"sampling_rate" yaml:"sampling_rate"`
	TotalChannels int             `mapstructure:"total_channels" yaml:"total_channels"`
	Channels      []ChannelConfig `mapstructure:"channels" yaml:"channels"`
}

type RecordingConfig struct {
	Directory      string        `mapstructure:"directory" yaml:"directory"`
	MusicDirectory string        `mapstructure:"music_directory" yaml:"music_directory"`
	MaxDuration    int           `mapstructure:"max_duration" yaml:"max_duration"` // seconds
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type RenderConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	WindowSeconds int           `mapstructure:"window_seconds" yaml:"window_seconds"`
	Width         int           `mapstructure:"width" yaml:"width"`
	Height        int           `mapstructure:"height" yaml:"height"`
	Output        string        `mapstructure:"output" yaml:"output,omitempty"` // PNG rewritten every tick
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// RootConfig mirrors the configuration file
type RootConfig struct {
	ActiveBoard string                  `mapstructure:"active_board" yaml:"active_board"`
	Boards      map[string]*BoardConfig `mapstructure:"boards" yaml:"boards"`
	Recording   RecordingConfig         `mapstructure:"recording" yaml:"recording"`
	Render      RenderConfig            `mapstructure:"render" yaml:"render"`
	Server      ServerConfig            `mapstructure:"server" yaml:"server"`
}

// Config is the resolved configuration with one board selected
type Config struct {
	BoardName string          `yaml:"board_name"`
	Board     BoardConfig     `yaml:"board"`
	Recording RecordingConfig `yaml:"recording"`
	Render    RenderConfig    `yaml:"render"`
	Server    ServerConfig    `yaml:"server"`
}

var defaultBoard = BoardConfig{
	Type:          "synthetic",
	SamplingRate:  256,
	TotalChannels: 6,
	Channels: []ChannelConfig{
		{Index: 1, Label: "TP9"},
		{Index: 2, Label: "AF7"},
		{Index: 3, Label: "AF8"},
		{Index: 4, Label: "TP10"},
	},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("active_board", DefaultBoardName)
	v.SetDefault("recording.directory", "./recordings")
	v.SetDefault("recording.music_directory", "./musics")
	v.SetDefault("recording.max_duration", 3600)
	v.SetDefault("recording.poll_interval", 200*time.Millisecond)
	v.SetDefault("render.interval", 100*time.Millisecond)
	v.SetDefault("render.window_seconds", 3)
	v.SetDefault("render.width", 1024)
	v.SetDefault("render.height", 400)
	v.SetDefault("render.output", "")
	v.SetDefault("server.port", "8080")
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg, err := resolve(defaultRoot(viper.New()), "")
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func defaultRoot(v *viper.Viper) *RootConfig {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var root RootConfig
	// Unmarshal of defaults-only viper cannot fail
	_ = v.Unmarshal(&root)
	return &root
}

// Load reads configFile and resolves the requested board profile.
// An empty board name selects active_board from the file.
func Load(configFile, boardName string) (*Config, error) {
	if configFile == "" {
		return resolve(defaultRoot(viper.New()), boardName)
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return resolve(rootConfig, boardName)
}

// LoadOrDefault behaves like Load but falls back to defaults when
// configFile does not exist.
func LoadOrDefault(configFile, boardName string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return Load("", boardName)
		}
	}
	return Load(configFile, boardName)
}

// ReadRootConfig reads and validates the configuration file format
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configFile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, b := range rootConfig.Boards {
		if b == nil {
			return nil, fmt.Errorf("boards.%s: board definition is empty", name)
		}
		if err := validateBoard(b, "boards."+name); err != nil {
			return nil, fmt.Errorf("invalid boards: %w", err)
		}
	}

	return &rootConfig, nil
}

func resolve(root *RootConfig, boardName string) (*Config, error) {
	name := strings.ToLower(boardName)
	if name == "" {
		name = strings.ToLower(root.ActiveBoard)
	}
	if name == "" {
		name = DefaultBoardName
	}

	var selected BoardConfig
	if b, ok := root.Boards[name]; ok {
		selected = *b
	} else if name == DefaultBoardName {
		selected = defaultBoard
		selected.Channels = append([]ChannelConfig(nil), defaultBoard.Channels...)
	} else {
		return nil, fmt.Errorf("board profile '%s' not found", name)
	}

	cfg := &Config{
		BoardName: name,
		Board:     selected,
		Recording: root.Recording,
		Render:    root.Render,
		Server:    root.Server,
	}
	cfg.Recording.Directory = expandPath(cfg.Recording.Directory)
	cfg.Recording.MusicDirectory = expandPath(cfg.Recording.MusicDirectory)
	cfg.Render.Output = expandPath(cfg.Render.Output)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks a resolved configuration
func (c *Config) Validate() error {
	if err := validateBoard(&c.Board, "boards."+c.BoardName); err != nil {
		return err
	}

	if c.Recording.Directory == "" {
		return fmt.Errorf("recording.directory is required")
	}
	if c.Recording.MaxDuration <= 0 {
		return fmt.Errorf("recording.max_duration must be > 0, got: %d", c.Recording.MaxDuration)
	}
	if c.Recording.PollInterval <= 0 {
		return fmt.Errorf("recording.poll_interval must be > 0, got: %s", c.Recording.PollInterval)
	}

	if c.Render.Interval <= 0 {
		return fmt.Errorf("render.interval must be > 0, got: %s", c.Render.Interval)
	}
	if c.Render.WindowSeconds <= 0 {
		return fmt.Errorf("render.window_seconds must be > 0, got: %d", c.Render.WindowSeconds)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size must be positive, got: %dx%d", c.Render.Width, c.Render.Height)
	}

	return nil
}

// validateBoard validates a single board definition
func validateBoard(b *BoardConfig, prefix string) error {
	switch strings.ToLower(b.Type) {
	case "synthetic":
	case "serial":
		if b.Port == "" {
			return fmt.Errorf("%s: 'port' is required for serial boards", prefix)
		}
		if b.BaudRate <= 0 {
			return fmt.Errorf("%s: 'baud_rate' must be > 0, got: %d", prefix, b.BaudRate)
		}
		if b.TotalChannels < 3 {
			return fmt.Errorf("%s: serial boards need 'total_channels' >= 3, got: %d", prefix, b.TotalChannels)
		}
	case "":
		return fmt.Errorf("%s: 'type' is required", prefix)
	default:
		return fmt.Errorf("%s: 'type' must be 'synthetic' or 'serial', got: %s", prefix, b.Type)
	}

	if b.SamplingRate <= 0 {
		return fmt.Errorf("%s: 'sampling_rate' must be > 0, got: %d", prefix, b.SamplingRate)
	}
	if b.TotalChannels <= 0 {
		return fmt.Errorf("%s: 'total_channels' must be > 0, got: %d", prefix, b.TotalChannels)
	}
	if len(b.Channels) == 0 {
		return fmt.Errorf("%s: 'channels' cannot be empty", prefix)
	}

	seenIndex := make(map[int]bool)
	seenLabel := make(map[string]bool)
	for i, ch := range b.Channels {
		chPrefix := fmt.Sprintf("%s.channels[%d]", prefix, i)
		if strings.TrimSpace(ch.Label) == "" {
			return fmt.Errorf("%s: 'label' is required", chPrefix)
		}
		if ch.Index < 0 || ch.Index >= b.TotalChannels {
			return fmt.Errorf("%s: 'index' must be in [0, %d), got: %d", chPrefix, b.TotalChannels, ch.Index)
		}
		if seenIndex[ch.Index] {
			return fmt.Errorf("%s: duplicate index %d", chPrefix, ch.Index)
		}
		if seenLabel[ch.Label] {
			return fmt.Errorf("%s: duplicate label '%s'", chPrefix, ch.Label)
		}
		seenIndex[ch.Index] = true
		seenLabel[ch.Label] = true
	}

	return nil
}

// BoardNames returns the board profiles defined in configFile, sorted
func BoardNames(configFile string) ([]string, error) {
	root, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(root.Boards))
	for name := range root.Boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpdateActiveBoard rewrites the active_board field of the config file
func UpdateActiveBoard(configFile, board string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_board", board)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// ChannelLabels returns the labels of the selected board's channels
func (c *Config) ChannelLabels() []string {
	labels := make([]string, len(c.Board.Channels))
	for i, ch := range c.Board.Channels {
		labels[i] = ch.Label
	}
	return labels
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
