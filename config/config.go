package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EngineOnline = "tier1-online"
	EngineLocal  = "tier2-local"

	ProviderGoogle = "google"
	ProviderKokoro = "kokoro"
)

type Config struct {
	LogFile     string `toml:"LogFile"`
	LogLevel    string `toml:"LogLevel"` // debug, info, warn, error
	DBPATH      string `toml:"DBPATH"`
	Language    string `toml:"Language"` // UI language: en, zh_CN, zh_TW
	RPCPort     int    `toml:"RPCPort"`
	Notify      bool   `toml:"Notify"`
	ArtifactDir string `toml:"ArtifactDir"` // empty means os.TempDir()
	SentryDSN   string `toml:"SentryDSN"`   // empty disables error reports
	// capture
	CaptureTool string `toml:"CaptureTool"` // empty means autodetect
	// OCR
	OCRLanguages    string `toml:"OCRLanguages"`
	TesseractBinary string `toml:"TesseractBinary"`
	// TTS
	TTS_ENGINE          string            `toml:"TTS_ENGINE"` // tier1-online, tier2-local
	TTS_ONLINE_PROVIDER string            `toml:"TTS_ONLINE_PROVIDER"`
	TTS_URL             string            `toml:"TTS_URL"`
	TTS_SPEED           float32           `toml:"TTS_SPEED"`
	TTS_RETRIES         int               `toml:"TTS_RETRIES"`
	PiperBinary         string            `toml:"PiperBinary"`
	PiperModels         map[string]string `toml:"PiperModels"` // lang -> .onnx model path
	EspeakBinary        string            `toml:"EspeakBinary"`
	// playback
	PollIntervalMS int `toml:"PollIntervalMS"`
}

// Default is the in-memory config used when the file is missing or broken.
// It prefers the local engine so the helper works offline.
func Default() *Config {
	dataDir := filepath.Join(userDataDir(), "models")
	return &Config{
		LogFile:             filepath.Join(os.TempDir(), "amd-helper.log"),
		LogLevel:            "info",
		DBPATH:              filepath.Join(userDataDir(), "history.db"),
		Language:            DetectUILanguage(),
		RPCPort:             8765,
		Notify:              true,
		OCRLanguages:        "chi_sim+eng",
		TesseractBinary:     "tesseract",
		TTS_ENGINE:          EngineLocal,
		TTS_ONLINE_PROVIDER: ProviderGoogle,
		TTS_URL:             "http://localhost:8880/v1/audio/speech",
		TTS_SPEED:           1.0,
		TTS_RETRIES:         3,
		PiperModels: map[string]string{
			"zh": filepath.Join(dataDir, "zh_CN-huayan-medium.onnx"),
			"en": filepath.Join(dataDir, "en_US-kristin-medium.onnx"),
		},
		PollIntervalMS: 50,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/amd-helper/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), ".config")
	}
	return filepath.Join(dir, "amd-helper", "config.toml")
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "amd-helper")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "amd-helper")
	}
	return filepath.Join(home, ".local", "share", "amd-helper")
}

// LoadConfig never returns a nil config: on a missing or corrupt file it
// returns the defaults together with the error so the caller can warn.
func LoadConfig(fn string) (*Config, error) {
	if fn == "" {
		fn = DefaultPath()
	}
	config := Default()
	if _, err := toml.DecodeFile(fn, config); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), fmt.Errorf("config %s not found: %w", fn, err)
		}
		return Default(), fmt.Errorf("failed to parse config %s: %w", fn, err)
	}
	config.fillEmpty()
	return config, nil
}

// fillEmpty restores defaults for keys a partial file left blank.
func (c *Config) fillEmpty() {
	def := Default()
	if c.LogFile == "" {
		c.LogFile = def.LogFile
	}
	if c.DBPATH == "" {
		c.DBPATH = def.DBPATH
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.RPCPort <= 0 {
		c.RPCPort = def.RPCPort
	}
	if c.OCRLanguages == "" {
		c.OCRLanguages = def.OCRLanguages
	}
	if c.TesseractBinary == "" {
		c.TesseractBinary = def.TesseractBinary
	}
	if c.TTS_ONLINE_PROVIDER == "" {
		c.TTS_ONLINE_PROVIDER = def.TTS_ONLINE_PROVIDER
	}
	if c.TTS_SPEED <= 0 {
		c.TTS_SPEED = def.TTS_SPEED
	}
	if c.TTS_RETRIES <= 0 {
		c.TTS_RETRIES = def.TTS_RETRIES
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = def.PollIntervalMS
	}
	if len(c.PiperModels) == 0 {
		c.PiperModels = def.PiperModels
	}
}

// Save writes the config as TOML, creating the parent directory.
func (c *Config) Save(fn string) error {
	if fn == "" {
		fn = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	f, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Clone returns a deep copy so a reconfigure never shares maps with the old value.
func (c *Config) Clone() *Config {
	cp := *c
	cp.PiperModels = maps.Clone(c.PiperModels)
	return &cp
}

func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *Config) TempDir() string {
	if c.ArtifactDir != "" {
		return c.ArtifactDir
	}
	return os.TempDir()
}
