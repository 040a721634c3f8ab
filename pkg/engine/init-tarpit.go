package engine

import (
	"os"
	"path/filepath"
	"time"

	"tarpit/pkg/models"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a complete default config to configPath. Optional
// features are written disabled so they can be switched on in place.
func InitConfig(configPath string) error {
	config := DefaultConfig()

	storageDir, err := ResolveStoragePath(config, configPath)
	if err != nil {
		return err
	}

	requests := int64(10)
	window := time.Minute
	db := 0
	config.Log = &models.LogConfig{
		ToFile:   true,
		FilePath: filepath.Join(storageDir, "tarpit.log"),
		ToStdout: true,
		Prefix:   "[Tarpit]",
	}
	config.Storage.Path = storageDir
	config.RateLimit = &models.RateLimitConfig{
		Enabled:  false,
		Requests: &requests,
		Window:   &window,
		Storage:  "memory",
		KeyBy:    []string{"ip"},
		Redis: &models.RedisConfig{
			Address:      "localhost:6379",
			DB:           &db,
			KeyNamespace: "tarpit:ratelimit:",
		},
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return err
	}
	return enc.Close()
}
