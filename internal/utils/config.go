package utils

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that also unmarshals from YAML strings like
// "10m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// PostgresConfig describes the connection to the API token database.
// Host may also carry a full postgres:// DSN, in which case the other
// fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config holds the full service configuration, loaded once at startup.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Limits struct {
		MaxTextBytes int `yaml:"max_text_bytes"`
	} `yaml:"limits"`

	Cache struct {
		RedisHost         string   `yaml:"redis_host"`
		RateLimitDB       int      `yaml:"redis_rate_db"`
		ImageCacheDB      int      `yaml:"redis_image_db"`
		ImageCacheEnabled bool     `yaml:"image_cache_enabled"`
		ImageCacheTTL     Duration `yaml:"image_cache_ttl"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          Duration `yaml:"interval"`
		UserLimit         int      `yaml:"user_limit"`
		EnableUserLimiter bool     `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	Image struct {
		// Renderer selects the strategy: "raster" (in-process) or "chrome".
		Renderer        string   `yaml:"renderer"`
		DefaultText     string   `yaml:"default_text"`
		DefaultWidth    int      `yaml:"default_width"`
		DefaultHeight   int      `yaml:"default_height"`
		DefaultFontSize int      `yaml:"default_font_size"`
		DefaultPadding  int      `yaml:"default_padding"`
		MaxWidth        int      `yaml:"max_width"`
		MaxHeight       int      `yaml:"max_height"`
		FontPaths       []string `yaml:"font_paths"`
		TimeoutSecs     int      `yaml:"timeout_secs"`
		ChromePath      string   `yaml:"chrome_path"`
		ChromeNoSandbox bool     `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int      `yaml:"chrome_pool_size"`
		UserDataDir     string   `yaml:"user_data_dir"`
	} `yaml:"image"`
}

// AppConfig is the process-wide configuration set by LoadConfig.
var AppConfig Config

// LoadConfig reads the YAML config from CONFIG_PATH (default config.yaml),
// applies defaults for anything unset and honors the PORT and WORKERS
// environment overrides. A missing config file is not an error; the service
// runs on defaults.
func LoadConfig() Config {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			Error("Invalid config file, using defaults", "path", path, "error", err)
			cfg = Config{}
		}
	}

	applyDefaults(&cfg)

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = ":" + port
	}
	if workers := os.Getenv("WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Server.Prefork = n > 1
		}
	}

	AppConfig = cfg
	return cfg
}

// GetConfig returns the configuration loaded by LoadConfig.
func GetConfig() Config {
	return AppConfig
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Logger.File == "" {
		cfg.Logger.File = "logs/text2img.log"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.MaxSizeMB == 0 {
		cfg.Logger.MaxSizeMB = 50
	}
	if cfg.Logger.MaxBackups == 0 {
		cfg.Logger.MaxBackups = 3
	}
	if cfg.Logger.MaxAgeDays == 0 {
		cfg.Logger.MaxAgeDays = 14
	}
	if cfg.Limits.MaxTextBytes == 0 {
		cfg.Limits.MaxTextBytes = 16 * 1024
	}
	if cfg.Cache.ImageCacheTTL == 0 {
		cfg.Cache.ImageCacheTTL = Duration(time.Hour)
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = Duration(time.Minute)
	}

	img := &cfg.Image
	if img.Renderer == "" {
		img.Renderer = "raster"
	}
	if img.DefaultText == "" {
		img.DefaultText = "Hello, World!"
	}
	if img.DefaultWidth == 0 {
		img.DefaultWidth = 800
	}
	if img.DefaultHeight == 0 {
		img.DefaultHeight = 1000
	}
	if img.DefaultFontSize == 0 {
		img.DefaultFontSize = 36
	}
	if img.DefaultPadding == 0 {
		img.DefaultPadding = 20
	}
	if img.MaxWidth == 0 {
		img.MaxWidth = 4000
	}
	if img.MaxHeight == 0 {
		img.MaxHeight = 4000
	}
	if len(img.FontPaths) == 0 {
		img.FontPaths = []string{"fonts/Manrope-Bold.ttf", "fonts/Manrope-Variable.ttf"}
	}
	if img.TimeoutSecs == 0 {
		img.TimeoutSecs = 15
	}
}
