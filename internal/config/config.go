package config

import (
	"fmt"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus" // Use logrus
)

// Default API endpoints. Both wikis speak the MediaWiki action API.
const (
	DefaultCommonsApiUrl  = "https://commons.wikimedia.org/w/api.php"
	DefaultWikidataApiUrl = "https://www.wikidata.org/w/api.php"
)

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and fills in defaults for anything the file leaves unset.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml" // Default path
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	applyDefaults(&cfg)

	if cfg.AccessToken == "" {
		log.Warn("Warning: AccessToken is not set in config; writes to Commons/Wikidata will fail")
	}
	if cfg.Author == "" {
		log.Warn("Warning: Author is not set in config; uploads will have an empty author field")
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// applyDefaults fills zero values with usable defaults so commands do not
// have to re-check every field.
func applyDefaults(cfg *models.Config) {
	if cfg.CommonsApiUrl == "" {
		cfg.CommonsApiUrl = DefaultCommonsApiUrl
	}
	if cfg.WikidataApiUrl == "" {
		cfg.WikidataApiUrl = DefaultWikidataApiUrl
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "wikiportraits.db"
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = "wikiportraits.bleve"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.License == "" {
		cfg.License = "Cc-by-sa-4.0"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = 60
	}
	if cfg.SuggestionTTLMinutes <= 0 {
		cfg.SuggestionTTLMinutes = 30
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wikiportraits-uploader/0.1 (https://github.com/flogvit/wikiportraits-uploader-sub003)"
	}
}
