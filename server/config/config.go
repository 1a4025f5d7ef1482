package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig   `yaml:"server"`
	Logging        LoggingConfig  `yaml:"logging"`
	Paths          PathsConfig    `yaml:"paths"`
	Download       DownloadConfig `yaml:"download"`
	Engine         EngineConfig   `yaml:"engine"`
	Authentication AuthConfig     `yaml:"authentication"`
	AutoArchive    bool           `yaml:"auto_archive"`
	path           string
}

type ServerConfig struct {
	BaseURL   string `yaml:"base_url"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	QueueSize int    `yaml:"queue_size"`
}

type LoggingConfig struct {
	LogPath           string `yaml:"log_path"`
	EnableFileLogging bool   `yaml:"enable_file_logging"`
	Level             string `yaml:"level"`
}

type PathsConfig struct {
	DownloadPath      string `yaml:"download_path"`
	RtmpdumpPath      string `yaml:"rtmpdump_path"`
	LocalDatabasePath string `yaml:"local_database_path"`
	SessionFilePath   string `yaml:"session_file_path"`
}

type DownloadConfig struct {
	BufferSize  int           `yaml:"buffer_size"`
	Extension   string        `yaml:"extension"`
	UserAgent   string        `yaml:"user_agent"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// minimum free bytes required on the download volume, 0 disables the check
	MinFreeSpace uint64 `yaml:"min_free_space"`
}

type EngineConfig struct {
	// network timeout passed to rtmpdump, in seconds
	Timeout        int           `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Live           bool          `yaml:"live"`
}

type AuthConfig struct {
	RequireAuth  bool   `yaml:"require_auth"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	JWTSecret    string `yaml:"jwt_secret"`
}

var (
	instance     *Config
	instanceOnce sync.Once
)

func Instance() *Config {
	if instance == nil {
		instanceOnce.Do(func() {
			instance = Default()
		})
	}
	return instance
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      3044,
			QueueSize: 1,
		},
		Logging: LoggingConfig{
			LogPath: "drnu-downloader.log",
			Level:   "info",
		},
		Paths: PathsConfig{
			DownloadPath:      ".",
			RtmpdumpPath:      "rtmpdump",
			LocalDatabasePath: ".",
			SessionFilePath:   ".",
		},
		Download: DownloadConfig{
			BufferSize:  32 * 1024,
			Extension:   ".flv",
			HTTPTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			ConnectTimeout: 30 * time.Second,
		},
		AutoArchive: true,
	}
}

// Load reads path into the singleton, then applies DRNU_* environment
// overrides. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	c := Instance()
	if err := c.LoadFile(path); err != nil {
		return nil, err
	}
	c.ApplyEnv(os.LookupEnv)
	c.normalize()
	return c, nil
}

func (c *Config) LoadFile(path string) error {
	c.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables such as
// DRNU_DOWNLOAD_PATH. Malformed numbers and booleans are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup("DRNU_" + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup("DRNU_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup("DRNU_" + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("HOST", &c.Server.Host)
	num("PORT", &c.Server.Port)
	str("BASE_URL", &c.Server.BaseURL)
	str("LOG_PATH", &c.Logging.LogPath)
	str("LOG_LEVEL", &c.Logging.Level)
	boolean("ENABLE_FILE_LOGGING", &c.Logging.EnableFileLogging)
	str("DOWNLOAD_PATH", &c.Paths.DownloadPath)
	str("RTMPDUMP_PATH", &c.Paths.RtmpdumpPath)
	str("DATABASE_PATH", &c.Paths.LocalDatabasePath)
	str("SESSION_PATH", &c.Paths.SessionFilePath)
	str("USER_AGENT", &c.Download.UserAgent)
	num("BUFFER_SIZE", &c.Download.BufferSize)
	num("ENGINE_TIMEOUT", &c.Engine.Timeout)
	boolean("REQUIRE_AUTH", &c.Authentication.RequireAuth)
	str("USERNAME", &c.Authentication.Username)
	str("PASSWORD", &c.Authentication.Password)
	str("JWT_SECRET", &c.Authentication.JWTSecret)
}

func (c *Config) normalize() {
	// one stream at a time per process
	c.Server.QueueSize = 1

	if c.Download.BufferSize <= 0 {
		c.Download.BufferSize = 32 * 1024
	}
	if c.Download.Extension == "" {
		c.Download.Extension = ".flv"
	}
	if !strings.HasPrefix(c.Download.Extension, ".") {
		c.Download.Extension = "." + c.Download.Extension
	}
	if c.Download.HTTPTimeout <= 0 {
		c.Download.HTTPTimeout = 30 * time.Second
	}
	if c.Engine.ConnectTimeout <= 0 {
		c.Engine.ConnectTimeout = 30 * time.Second
	}
}

// Path of the directory containing the config file
func (c *Config) Dir() string { return filepath.Dir(c.path) }

// Absolute path of the config file
func (c *Config) Path() string { return c.path }
