package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the variable that points at an optional TOML config file.
const FileEnv = "PHASEWATCH_CONFIG"

const (
	EngineOpenCV = "opencv"
	EngineRemote = "remote"
)

type Config struct {
	Port          string `toml:"port"            env:"PORT"`
	UploadDir     string `toml:"upload_dir"      env:"UPLOAD_DIR"`
	MaxUploadSize int64  `toml:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
	DBPath        string `toml:"db_path"         env:"DB_PATH"`

	Engine          string  `toml:"engine"            env:"ENGINE"`
	ModelPath       string  `toml:"model_path"        env:"MODEL_PATH"`
	LabelsPath      string  `toml:"labels_path"       env:"LABELS_PATH"`
	ModelKeypoints  int     `toml:"model_keypoints"   env:"MODEL_KEYPOINTS"`
	RemoteEngineURL string  `toml:"remote_engine_url" env:"REMOTE_ENGINE_URL"`
	ConfThreshold   float64 `toml:"conf_threshold"    env:"CONF_THRESHOLD"`
	NMSThreshold    float64 `toml:"nms_threshold"     env:"NMS_THRESHOLD"`
	InputSize       int     `toml:"input_size"        env:"INPUT_SIZE"`

	MaxVideoWidth int           `toml:"max_video_width" env:"MAX_VIDEO_WIDTH"`
	FrameDelay    time.Duration `toml:"-"               env:"FRAME_DELAY"`
	JPEGQuality   int           `toml:"jpeg_quality"    env:"JPEG_QUALITY"`
	IdleTimeout   time.Duration `toml:"-"               env:"IDLE_TIMEOUT"`

	LogLevel       string `toml:"log_level"       env:"LOG_LEVEL"`
	MetricsEnabled bool   `toml:"metrics_enabled" env:"METRICS_ENABLED"`
	OTelEndpoint   string `toml:"otel_endpoint"   env:"OTEL_ENDPOINT"`
}

func Default() *Config {
	return &Config{
		Port:          "8080",
		UploadDir:     "./uploads",
		MaxUploadSize: 500 << 20,
		DBPath:        "file:phasewatch?mode=memory&cache=shared",

		Engine:        EngineOpenCV,
		ConfThreshold: 0.25,
		NMSThreshold:  0.45,
		InputSize:     640,

		MaxVideoWidth: 600,
		FrameDelay:    30 * time.Millisecond,
		JPEGQuality:   80,
		IdleTimeout:   30 * time.Second,

		LogLevel:       "info",
		MetricsEnabled: true,
	}
}

// Load applies defaults, then the TOML file named by PHASEWATCH_CONFIG (if any),
// then environment variables, and validates the result.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := applyDurations(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durations are written as Go duration strings ("30ms") in the file.
type fileDurations struct {
	FrameDelay  string `toml:"frame_delay"`
	IdleTimeout string `toml:"idle_timeout"`
}

func applyDurations(data []byte, cfg *Config) error {
	var fd fileDurations
	if err := toml.Unmarshal(data, &fd); err != nil {
		return err
	}
	if fd.FrameDelay != "" {
		d, err := time.ParseDuration(fd.FrameDelay)
		if err != nil {
			return fmt.Errorf("frame_delay: %w", err)
		}
		cfg.FrameDelay = d
	}
	if fd.IdleTimeout != "" {
		d, err := time.ParseDuration(fd.IdleTimeout)
		if err != nil {
			return fmt.Errorf("idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	return nil
}

func (c *Config) normalize() {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.ModelPath = strings.TrimSpace(c.ModelPath)
	c.RemoteEngineURL = strings.TrimRight(strings.TrimSpace(c.RemoteEngineURL), "/")
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Engine {
	case EngineOpenCV:
		if c.ModelPath == "" {
			errs = append(errs, errors.New("MODEL_PATH is required for the opencv engine"))
		}
	case EngineRemote:
		if c.RemoteEngineURL == "" {
			errs = append(errs, errors.New("REMOTE_ENGINE_URL is required for the remote engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported engine %q", c.Engine))
	}

	if c.ConfThreshold <= 0 || c.ConfThreshold >= 1 {
		errs = append(errs, fmt.Errorf("CONF_THRESHOLD must be in (0,1), got %v", c.ConfThreshold))
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold >= 1 {
		errs = append(errs, fmt.Errorf("NMS_THRESHOLD must be in (0,1), got %v", c.NMSThreshold))
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		errs = append(errs, fmt.Errorf("INPUT_SIZE must be a positive multiple of 32, got %d", c.InputSize))
	}
	if c.ModelKeypoints < 0 {
		errs = append(errs, fmt.Errorf("MODEL_KEYPOINTS must not be negative, got %d", c.ModelKeypoints))
	}
	if c.MaxVideoWidth < 16 {
		errs = append(errs, fmt.Errorf("MAX_VIDEO_WIDTH too small: %d", c.MaxVideoWidth))
	}
	if c.FrameDelay < 0 {
		errs = append(errs, fmt.Errorf("FRAME_DELAY must not be negative, got %s", c.FrameDelay))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("IDLE_TIMEOUT must not be negative, got %s", c.IdleTimeout))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("JPEG_QUALITY must be in [1,100], got %d", c.JPEGQuality))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_LEVEL %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
