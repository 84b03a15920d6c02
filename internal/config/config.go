package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "LiveTV CLI"
	AppTagline      = "Terminal live channel player"
	AppDescription  = "A terminal-based browser and player for live TV channel catalogs"
	AppProjectURL   = "https://github.com/glebovdev/livetv-cli"
	AppProjectShort = "github.com/glebovdev/livetv-cli"

	ConfigDir      = ".config/livetv"
	ConfigFileName = "config.yml"

	DefaultCatalogURL = "https://raw.githubusercontent.com/mdnazmul582378/Channel/refs/heads/main/List/Raw/channels.json"
	DefaultCategory   = "live"

	DefaultVolume = 70
	MinVolume     = 0
	MaxVolume     = 100

	DefaultLoadTimeout    = 15 * time.Second
	MinLoadTimeout        = time.Second
	DefaultStallThreshold = 2 * time.Second

	OutputProcess = "process"
	OutputAudio   = "audio"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/livetv-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background                  string `yaml:"background"`
	Foreground                  string `yaml:"foreground"`
	Borders                     string `yaml:"borders"`
	Highlight                   string `yaml:"highlight"`
	HeaderBackground            string `yaml:"header_background"`
	ChannelListHeaderBackground string `yaml:"channel_list_header_background"`
	ChannelListHeaderForeground string `yaml:"channel_list_header_foreground"`
	HelpBackground              string `yaml:"help_background"`
	HelpForeground              string `yaml:"help_foreground"`
	HelpHotkey                  string `yaml:"help_hotkey"`
	CategoryTagBackground       string `yaml:"category_tag_background"`
	ModalBackground             string `yaml:"modal_background"`
	ErrorForeground             string `yaml:"error_foreground"`
}

// Playback configures the supervisor and the media output.
type Playback struct {
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	Output         string        `yaml:"output"`
	PlayerCommand  string        `yaml:"player_command"`
	PlayerArgs     []string      `yaml:"player_args"`
	NativeTypes    []string      `yaml:"native_types"`
	Adaptive       bool          `yaml:"adaptive"`
	StallThreshold time.Duration `yaml:"stall_threshold"`
}

// Buffer holds the adaptive engine tuning. Values mirror a live,
// low-latency hls.js setup.
type Buffer struct {
	MaxBufferLength       time.Duration `yaml:"max_buffer_length"`
	MaxMaxBufferLength    time.Duration `yaml:"max_max_buffer_length"`
	BackBufferLength      time.Duration `yaml:"back_buffer_length"`
	LiveSyncDurationCount int           `yaml:"live_sync_duration_count"`
	StartLevel            int           `yaml:"start_level"`
	LowLatencyMode        bool          `yaml:"low_latency_mode"`
	AutoStartLoad         bool          `yaml:"auto_start_load"`
	RequestsPerSecond     int           `yaml:"requests_per_second"`
}

type Config struct {
	CatalogURL      string   `yaml:"catalog_url"`
	DefaultCategory string   `yaml:"default_category"`
	Categories      []string `yaml:"categories"`
	LastChannel     string   `yaml:"last_channel"`
	Autostart       bool     `yaml:"autostart"`
	Volume          int      `yaml:"volume"`
	Playback        Playback `yaml:"playback"`
	Buffer          Buffer   `yaml:"buffer"`
	Theme           Theme    `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

// normalize replaces out-of-range values with their defaults.
func (c *Config) normalize() {
	defaults := DefaultConfig()

	c.Volume = ClampVolume(c.Volume)

	if c.CatalogURL == "" {
		c.CatalogURL = defaults.CatalogURL
	}
	if c.DefaultCategory == "" {
		c.DefaultCategory = defaults.DefaultCategory
	}

	if c.Playback.LoadTimeout < MinLoadTimeout {
		c.Playback.LoadTimeout = defaults.Playback.LoadTimeout
	}
	if c.Playback.StallThreshold <= 0 {
		c.Playback.StallThreshold = defaults.Playback.StallThreshold
	}
	if c.Playback.Output != OutputProcess && c.Playback.Output != OutputAudio {
		c.Playback.Output = defaults.Playback.Output
	}
	if c.Playback.PlayerCommand == "" {
		c.Playback.PlayerCommand = defaults.Playback.PlayerCommand
	}

	if c.Buffer.MaxBufferLength <= 0 {
		c.Buffer.MaxBufferLength = defaults.Buffer.MaxBufferLength
	}
	if c.Buffer.MaxMaxBufferLength < c.Buffer.MaxBufferLength {
		c.Buffer.MaxMaxBufferLength = c.Buffer.MaxBufferLength
	}
	if c.Buffer.LiveSyncDurationCount <= 0 {
		c.Buffer.LiveSyncDurationCount = defaults.Buffer.LiveSyncDurationCount
	}
	if c.Buffer.StartLevel < 0 {
		c.Buffer.StartLevel = 0
	}
	if c.Buffer.RequestsPerSecond <= 0 {
		c.Buffer.RequestsPerSecond = defaults.Buffer.RequestsPerSecond
	}
}

// Save writes the configuration to disk atomically.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := renameio.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func DefaultConfig() *Config {
	return &Config{
		CatalogURL:      DefaultCatalogURL,
		DefaultCategory: DefaultCategory,
		Categories:      []string{},
		LastChannel:     "",
		Autostart:       false,
		Volume:          DefaultVolume,
		Playback: Playback{
			LoadTimeout:    DefaultLoadTimeout,
			Output:         OutputProcess,
			PlayerCommand:  "mpv",
			PlayerArgs:     []string{"--really-quiet", "--force-window=immediate", "--cache=no"},
			NativeTypes:    []string{"audio/mpeg", "audio/aac", "video/mp4", "video/mp2t"},
			Adaptive:       true,
			StallThreshold: DefaultStallThreshold,
		},
		Buffer: Buffer{
			MaxBufferLength:       60 * time.Second,
			MaxMaxBufferLength:    120 * time.Second,
			BackBufferLength:      90 * time.Second,
			LiveSyncDurationCount: 3,
			StartLevel:            0,
			LowLatencyMode:        true,
			AutoStartLoad:         true,
			RequestsPerSecond:     20,
		},
		Theme: Theme{
			Background:                  "#1a1b25",
			Foreground:                  "#a3aacb",
			Borders:                     "#40445b",
			Highlight:                   "#ff9d65",
			HeaderBackground:            "#473533",
			ChannelListHeaderBackground: "#3a3d4f",
			ChannelListHeaderForeground: "#c8d0e8",
			HelpBackground:              "#322f45",
			HelpForeground:              "#9aa3c6",
			HelpHotkey:                  "#ff9d65",
			CategoryTagBackground:       "#3a3d4f",
			ModalBackground:             "#282a36",
			ErrorForeground:             "#fe0702",
		},
	}
}

// CategoryList returns the configured filter categories, falling back to
// the ones present in the catalog. The default category always comes first.
func (c *Config) CategoryList(fromCatalog []string) []string {
	source := c.Categories
	if len(source) == 0 {
		source = fromCatalog
	}

	result := []string{c.DefaultCategory}
	seen := map[string]bool{c.DefaultCategory: true}
	for _, category := range source {
		if category == "" || seen[category] {
			continue
		}
		seen[category] = true
		result = append(result, category)
	}
	return result
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
