package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"speechdesk/internal/domain"
)

// Config stores runtime configuration for both shells.
type Config struct {
	Recording RecordingConfig `yaml:"recording"`
	Online    OnlineConfig    `yaml:"online"`
	Google    GoogleConfig    `yaml:"google"`
	Deepgram  DeepgramConfig  `yaml:"deepgram"`
	Offline   OfflineConfig   `yaml:"offline"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
	UI        UIConfig        `yaml:"ui"`

	// Path is the config file that was read, if any.
	Path string `yaml:"-"`
}

type RecordingConfig struct {
	FFmpegCommand string `yaml:"ffmpeg_command"`
	InputFormat   string `yaml:"input_format"`
	InputDevice   string `yaml:"input_device"`
	Directory     string `yaml:"directory"`
	FramesPerRead int    `yaml:"frames_per_read"`
}

type OnlineConfig struct {
	Provider  string `yaml:"provider"` // google, deepgram
	TimeoutMS int    `yaml:"timeout_ms"`
	Retries   int    `yaml:"retries"`
	BackoffMS int    `yaml:"backoff_ms"`
}

func (c OnlineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c OnlineConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

type GoogleConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base_url"`
	Model       string `yaml:"model"`
	SmartFormat bool   `yaml:"smart_format"`
	ChunkSize   int    `yaml:"chunk_size"`
}

type OfflineConfig struct {
	EnglishModel string `yaml:"english_model"`
	PersianModel string `yaml:"persian_model"`
	ChunkFrames  int    `yaml:"chunk_frames"`
}

// Models maps each supported language to its model directory.
func (c OfflineConfig) Models() map[domain.Language]string {
	return map[domain.Language]string{
		domain.LanguageEnglish: c.EnglishModel,
		domain.LanguagePersian: c.PersianModel,
	}
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type UIConfig struct {
	AutoCopy        bool   `yaml:"auto_copy"`
	DefaultMode     string `yaml:"default_mode"`
	DefaultLanguage string `yaml:"default_language"`
}

// DefaultSelection resolves the configured default mode and language.
func (c UIConfig) DefaultSelection() (domain.Selection, error) {
	return domain.ParseSelection(c.DefaultMode, c.DefaultLanguage)
}

func Default() Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "speechdesk")
	}
	historyPath := "history.db"
	if dataDir != "" {
		historyPath = filepath.Join(dataDir, "history.db")
	}

	return Config{
		Recording: RecordingConfig{
			FFmpegCommand: "ffmpeg",
			InputFormat:   "pulse",
			InputDevice:   "default",
			Directory:     "recorded",
			FramesPerRead: 1024,
		},
		Online: OnlineConfig{
			Provider:  "google",
			TimeoutMS: 30000,
			Retries:   0,
			BackoffMS: 500,
		},
		Google: GoogleConfig{
			Endpoint: "https://speech.googleapis.com/",
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
			ChunkSize:   4096,
		},
		Offline: OfflineConfig{
			EnglishModel: filepath.Join("models", "vosk-model-small-en-us-0.15"),
			PersianModel: filepath.Join("models", "vosk-model-small-fa-0.42"),
			ChunkFrames:  4000,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    historyPath,
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			AutoCopy:        true,
			DefaultMode:     string(domain.ModeOnline),
			DefaultLanguage: string(domain.LanguageEnglish),
		},
	}
}

// DefaultPath returns the config file consulted when no explicit path is given.
func DefaultPath() string {
	if path := strings.TrimSpace(os.Getenv("SPEECHDESK_CONFIG")); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "speechdesk", "config.yaml")
}

// Load resolves defaults, then the YAML file at path, then environment
// overrides. An explicit path must exist; the default path is optional.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			cfg.Path = path
		case os.IsNotExist(err) && !explicit:
		case os.IsNotExist(err):
			return cfg, fmt.Errorf("config file not found: %w", err)
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Recording.FFmpegCommand, "SPEECHDESK_FFMPEG_COMMAND")
	overrideString(&cfg.Recording.InputFormat, "SPEECHDESK_AUDIO_INPUT_FORMAT")
	cfg.Recording.InputDevice = firstNonEmpty(os.Getenv("SPEECHDESK_AUDIO_INPUT_DEVICE"), cfg.Recording.InputDevice)
	overrideString(&cfg.Recording.Directory, "SPEECHDESK_RECORDINGS_DIR")
	overrideInt(&cfg.Recording.FramesPerRead, "SPEECHDESK_FRAMES_PER_READ")

	overrideString(&cfg.Online.Provider, "SPEECHDESK_ONLINE_PROVIDER")
	overrideInt(&cfg.Online.TimeoutMS, "SPEECHDESK_ONLINE_TIMEOUT_MS")
	overrideInt(&cfg.Online.Retries, "SPEECHDESK_ONLINE_RETRIES")
	overrideInt(&cfg.Online.BackoffMS, "SPEECHDESK_ONLINE_BACKOFF_MS")

	cfg.Google.APIKey = firstNonEmpty(os.Getenv("SPEECHDESK_GOOGLE_API_KEY"), os.Getenv("GOOGLE_SPEECH_API_KEY"), cfg.Google.APIKey)
	overrideString(&cfg.Google.Endpoint, "SPEECHDESK_GOOGLE_ENDPOINT")
	overrideString(&cfg.Google.Model, "SPEECHDESK_GOOGLE_MODEL")

	cfg.Deepgram.APIKey = firstNonEmpty(os.Getenv("SPEECHDESK_DEEPGRAM_API_KEY"), os.Getenv("DEEPGRAM_API_KEY"), cfg.Deepgram.APIKey)
	overrideString(&cfg.Deepgram.APIBaseURL, "SPEECHDESK_DEEPGRAM_API_BASE")
	overrideString(&cfg.Deepgram.Model, "SPEECHDESK_DEEPGRAM_MODEL")
	overrideBool(&cfg.Deepgram.SmartFormat, "SPEECHDESK_DEEPGRAM_SMART_FORMAT")
	overrideInt(&cfg.Deepgram.ChunkSize, "SPEECHDESK_DEEPGRAM_CHUNK_SIZE")

	overrideString(&cfg.Offline.EnglishModel, "SPEECHDESK_MODEL_EN")
	overrideString(&cfg.Offline.PersianModel, "SPEECHDESK_MODEL_FA")
	overrideInt(&cfg.Offline.ChunkFrames, "SPEECHDESK_OFFLINE_CHUNK_FRAMES")

	overrideBool(&cfg.History.Enabled, "SPEECHDESK_HISTORY_ENABLED")
	overrideString(&cfg.History.Path, "SPEECHDESK_HISTORY_PATH")

	overrideString(&cfg.Log.Level, "SPEECHDESK_LOG_LEVEL")
	overrideString(&cfg.Log.File, "SPEECHDESK_LOG_FILE")

	overrideBool(&cfg.UI.AutoCopy, "SPEECHDESK_AUTO_COPY")
	overrideString(&cfg.UI.DefaultMode, "SPEECHDESK_DEFAULT_MODE")
	overrideString(&cfg.UI.DefaultLanguage, "SPEECHDESK_DEFAULT_LANGUAGE")
}

// normalize replaces out-of-range numbers with defaults.
func normalize(cfg *Config) {
	def := Default()
	if cfg.Recording.FramesPerRead <= 0 {
		cfg.Recording.FramesPerRead = def.Recording.FramesPerRead
	}
	if cfg.Online.TimeoutMS < 0 {
		cfg.Online.TimeoutMS = def.Online.TimeoutMS
	}
	if cfg.Online.Retries < 0 {
		cfg.Online.Retries = 0
	}
	if cfg.Online.BackoffMS < 0 {
		cfg.Online.BackoffMS = def.Online.BackoffMS
	}
	if cfg.Deepgram.ChunkSize < 256 {
		cfg.Deepgram.ChunkSize = def.Deepgram.ChunkSize
	}
	if cfg.Offline.ChunkFrames <= 0 {
		cfg.Offline.ChunkFrames = def.Offline.ChunkFrames
	}
	cfg.Online.Provider = strings.ToLower(strings.TrimSpace(cfg.Online.Provider))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}

func validate(cfg Config) error {
	switch cfg.Online.Provider {
	case "google", "deepgram":
	default:
		return errors.New("online.provider must be one of google|deepgram")
	}
	if cfg.Recording.FFmpegCommand == "" {
		return errors.New("recording.ffmpeg_command must not be empty")
	}
	if cfg.Recording.Directory == "" {
		return errors.New("recording.directory must not be empty")
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return errors.New("history.path must be set when history is enabled")
	}
	if _, err := cfg.UI.DefaultSelection(); err != nil {
		return fmt.Errorf("ui defaults: %w", err)
	}
	return nil
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "1", "true", "yes", "on":
		*target = true
	case "0", "false", "no", "off":
		*target = false
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
