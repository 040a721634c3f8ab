package models

import "time"

const (
	DEFAULT_HOST           = "127.0.0.1"
	DEFAULT_PORT           = 8765
	DEFAULT_STALL_DELAY    = 15 * time.Second
	DEFAULT_PDF_FILENAME   = "test_delay.pdf"
	DEFAULT_MISSING_PREFIX = "/health/missing"
	DEFAULT_BLOCK_PREFIX   = "/health/block"
	DEFAULT_METRICS_ADDR   = "127.0.0.1:9765"
)

type LogConfig struct {
	ToFile       bool   `yaml:"toFile"`
	FilePath     string `yaml:"filePath"`
	ToStdout     bool   `yaml:"toStdout"`
	Prefix       string `yaml:"prefix"`
	DebugEnabled bool   `yaml:"debugEnabled"`
	NoColor      bool   `yaml:"noColor"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

// SlowDownloadConfig controls the stalled PDF response served for every
// path that does not match a health scenario.
type SlowDownloadConfig struct {
	Delay    time.Duration `yaml:"delay"`
	FileName string        `yaml:"fileName"`
}

// ScenarioConfig lists the path prefixes that select the 434 scenarios.
// Missing prefixes are always evaluated before block prefixes.
type ScenarioConfig struct {
	Missing []string `yaml:"missing"`
	Block   []string `yaml:"block"`
}

type RedisConfig struct {
	Address      string `yaml:"address"`
	Password     string `yaml:"password"`
	DB           *int   `yaml:"db"`
	KeyNamespace string `yaml:"keyNamespace"`
	FailOpen     *bool  `yaml:"failOpen"`
}

type RateLimitConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Requests *int64         `yaml:"requests"`
	Window   *time.Duration `yaml:"window"`
	Storage  string         `yaml:"storage"`
	KeyBy    []string       `yaml:"keyBy"`
	Redis    *RedisConfig   `yaml:"redis"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type TarpitConfig struct {
	Log          *LogConfig          `yaml:"log"`
	Server       *ServerConfig       `yaml:"server"`
	Storage      *StorageConfig      `yaml:"storage"`
	SlowDownload *SlowDownloadConfig `yaml:"slowDownload"`
	Scenarios    *ScenarioConfig     `yaml:"scenarios"`
	RateLimit    *RateLimitConfig    `yaml:"rateLimit"`
	Metrics      *MetricsConfig      `yaml:"metrics"`
}
