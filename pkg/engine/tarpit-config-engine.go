package engine

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tarpit/pkg/dispatcher"
	"tarpit/pkg/metrics"
	"tarpit/pkg/models"
	"tarpit/pkg/ratelimit"
	"tarpit/pkg/ratelimitmanager"
	"tarpit/pkg/utils/fs"
	"tarpit/pkg/utils/hash"
	"tarpit/pkg/utils/logger"

	"github.com/valyala/fasthttp"
	"gopkg.in/yaml.v3"
)

const PID_FILE = "tarpit.pid"

type TarpitEngine struct {
	config           *models.TarpitConfig
	logger           *logger.Logger
	dispatcher       *dispatcher.Dispatcher
	rateLimitManager *ratelimitmanager.RateLimitManager
	metrics          *metrics.Metrics
	server           *fasthttp.Server
	metricsServer    *fasthttp.Server
	stopping         chan struct{}
	stopOnce         sync.Once
	shutdownErr      error
	pidWritten       bool
}

// LoadConfig reads a YAML config. Defaults are not applied.
func LoadConfig(configPath string) (*models.TarpitConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read the config-path %s: %w", configPath, err)
	}

	var config models.TarpitConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse the config at %s: %w", configPath, err)
	}

	return &config, nil
}

// DefaultConfig is the configuration used when no config file exists.
func DefaultConfig() *models.TarpitConfig {
	config := &models.TarpitConfig{}
	ApplyDefaults(config)
	return config
}

// ApplyDefaults fills every section and zero-valued field left out of a
// config file. The storage path is resolved later, since it depends on the
// config file location.
func ApplyDefaults(config *models.TarpitConfig) {
	if config.Log == nil {
		config.Log = &models.LogConfig{
			ToStdout: true,
			Prefix:   "[Tarpit]",
		}
	}
	if config.Server == nil {
		config.Server = &models.ServerConfig{}
	}
	if config.Server.Host == "" {
		config.Server.Host = models.DEFAULT_HOST
	}
	if config.Server.Port == 0 {
		config.Server.Port = models.DEFAULT_PORT
	}
	if config.Storage == nil {
		config.Storage = &models.StorageConfig{}
	}
	if config.SlowDownload == nil {
		config.SlowDownload = &models.SlowDownloadConfig{}
	}
	if config.SlowDownload.Delay == 0 {
		config.SlowDownload.Delay = models.DEFAULT_STALL_DELAY
	}
	if config.SlowDownload.FileName == "" {
		config.SlowDownload.FileName = models.DEFAULT_PDF_FILENAME
	}
	if config.Scenarios == nil {
		config.Scenarios = &models.ScenarioConfig{}
	}
	if len(config.Scenarios.Missing) == 0 {
		config.Scenarios.Missing = []string{models.DEFAULT_MISSING_PREFIX}
	}
	if len(config.Scenarios.Block) == 0 {
		config.Scenarios.Block = []string{models.DEFAULT_BLOCK_PREFIX}
	}
	if config.RateLimit == nil {
		config.RateLimit = &models.RateLimitConfig{}
	}
	if config.Metrics == nil {
		config.Metrics = &models.MetricsConfig{}
	}
	if config.Metrics.Address == "" {
		config.Metrics.Address = models.DEFAULT_METRICS_ADDR
	}
}

func validate(config *models.TarpitConfig) error {
	if config.SlowDownload.Delay < 0 {
		return fmt.Errorf("slowDownload.delay must not be negative, got %s", config.SlowDownload.Delay)
	}
	for _, p := range append(append([]string(nil), config.Scenarios.Missing...), config.Scenarios.Block...) {
		if p == "" || p[0] != '/' {
			return fmt.Errorf("scenario prefix %q must start with '/'", p)
		}
	}
	return nil
}

// ResolveStoragePath returns the directory holding the pid file: the
// configured path, or a per-config directory under the user config dir.
func ResolveStoragePath(config *models.TarpitConfig, configPath string) (string, error) {
	if config.Storage != nil && config.Storage.Path != "" {
		return config.Storage.Path, nil
	}

	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute config path: %w", err)
	}

	root, err := fs.GetUserAppDataDir("tarpit")
	if err != nil {
		root = filepath.Join(os.TempDir(), "tarpit")
	}
	return filepath.Join(root, hash.HashString(absConfigPath)), nil
}

// InstantiateTarpitEngine applies defaults to config and wires the engine.
func InstantiateTarpitEngine(config *models.TarpitConfig, configPath string) (*TarpitEngine, error) {
	ApplyDefaults(config)
	if err := validate(config); err != nil {
		return nil, err
	}

	storagePath, err := ResolveStoragePath(config, configPath)
	if err != nil {
		return nil, err
	}
	config.Storage.Path = storagePath

	logger_, err := logger.NewLogger(config.Log)
	if err != nil {
		return nil, fmt.Errorf("unable to instantiate the logger: %w", err)
	}

	engine := &TarpitEngine{
		config:     config,
		logger:     logger_,
		dispatcher: dispatcher.NewDispatcher(config.Scenarios, config.SlowDownload),
		stopping:   make(chan struct{}),
	}

	limiter, err := ratelimit.NewRateLimiter(config.RateLimit, logger_)
	if err != nil {
		logger_.Close()
		return nil, fmt.Errorf("unable to instantiate the rate limiter: %w", err)
	}
	if limiter != nil {
		engine.rateLimitManager = ratelimitmanager.NewRateLimitManager(limiter, config.RateLimit, logger_)
		logger_.Info(fmt.Sprintf("Rate limiting enabled: %d requests per %s (%s storage)",
			*config.RateLimit.Requests, *config.RateLimit.Window, config.RateLimit.Storage))
	}

	if config.Metrics.Enabled {
		engine.metrics = metrics.New()
		engine.metricsServer = &fasthttp.Server{
			Handler: engine.metrics.Handler(),
			Name:    "tarpit-metrics",
			Logger:  logger_,
		}
	}

	engine.server = &fasthttp.Server{
		Handler:         engine.handleRequest,
		Name:            "tarpit",
		Logger:          logger_,
		CloseOnShutdown: true,
	}

	return engine, nil
}

// Addr is the host:port the fixture listens on.
func (engine *TarpitEngine) Addr() string {
	return net.JoinHostPort(engine.config.Server.Host, strconv.Itoa(int(engine.config.Server.Port)))
}
