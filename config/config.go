package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	SearchEngineBleve       = "bleve"
	SearchEngineMeilisearch = "meilisearch"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

const (
	defaultFlushInterval   = 30 * time.Second
	defaultReindexInterval = 24 * time.Hour
	defaultBatchSize       = 100
	defaultHostTag         = "local"
	defaultIndexName       = "mods"
)

type Config struct {
	config *viper.Viper
}

func Load() (*Config, error) {

	env := os.Getenv(keyEnv)
	if len(env) == 0 {
		env = envLocal
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

// Validate reports configuration that would make the process unusable. It is
// meant to be called once at startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.GetDatabaseDriver() {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.GetDatabaseDriver()))
	}
	if len(c.GetDatabaseDSN()) == 0 {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if len(c.GetKVDBPath()) == 0 {
		errs = append(errs, errors.New("kvdb path is required"))
	}
	if len(c.GetSiteURL()) == 0 {
		errs = append(errs, errors.New("site url is required"))
	}

	switch c.GetSearchEngine() {
	case SearchEngineBleve:
		if len(c.GetIndexPath()) == 0 {
			errs = append(errs, errors.New("search index path is required for bleve"))
		}
	case SearchEngineMeilisearch:
		if len(c.GetMeiliHost()) == 0 {
			errs = append(errs, errors.New("meilisearch host is required"))
		}
		if len(c.GetMeiliKey()) == 0 {
			errs = append(errs, errors.New("meilisearch key is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported search engine %q", c.GetSearchEngine()))
	}

	if c.GetFlushInterval() <= 0 {
		errs = append(errs, errors.New("flush interval must be positive"))
	}
	if c.GetReindexInterval() <= 0 {
		errs = append(errs, errors.New("reindex interval must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) GetPort() string {
	return c.getString("PORT", "server.port")
}

func (c *Config) GetLogLevel() string {
	return c.getString("LOG_LEVEL", "log.level")
}

func (c *Config) GetDatabaseDriver() string {
	driver := c.getString("DATABASE_DRIVER", "database.driver")
	if len(driver) == 0 {
		driver = DatabaseDriverSQLite
	}

	return driver
}

func (c *Config) GetDatabaseDSN() string {
	return c.getString("DATABASE_DSN", "database.dsn")
}

func (c *Config) GetKVDBPath() string {
	return c.getString("KVDB_PATH", "database.kvdb_path")
}

func (c *Config) GetSearchEngine() string {
	engine := c.getString("SEARCH_ENGINE", "search.engine")
	if len(engine) == 0 {
		engine = SearchEngineBleve
	}

	return engine
}

func (c *Config) GetIndexName() string {
	indexName := c.getString("INDEX_NAME", "search.index_name")
	if len(indexName) == 0 {
		indexName = defaultIndexName
	}

	return indexName
}

func (c *Config) GetIndexPath() string {
	return c.getString("INDEX_PATH", "search.index_path")
}

func (c *Config) GetMeiliHost() string {
	return c.getString("MEILI_HOST", "search.meili_host")
}

func (c *Config) GetMeiliKey() string {
	return c.getString("MEILI_KEY", "search.meili_key")
}

func (c *Config) GetRequeueOnFailure() bool {
	if c.config.IsSet("REQUEUE_ON_FAILURE") {
		return c.config.GetBool("REQUEUE_ON_FAILURE")
	}
	if c.config.IsSet("search.requeue_on_failure") {
		return c.config.GetBool("search.requeue_on_failure")
	}

	return true
}

func (c *Config) GetFlushInterval() time.Duration {
	return c.getDuration("FLUSH_INTERVAL", "index.flush_interval", defaultFlushInterval)
}

func (c *Config) GetReindexInterval() time.Duration {
	return c.getDuration("REINDEX_INTERVAL", "index.reindex_interval", defaultReindexInterval)
}

func (c *Config) GetBatchSize() int {
	batchSize := c.config.GetInt("BATCH_SIZE")
	if batchSize <= 0 {
		batchSize = c.config.GetInt("index.batch_size")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return batchSize
}

func (c *Config) GetSiteURL() string {
	return strings.TrimRight(c.getString("SITE_URL", "site.url"), "/")
}

func (c *Config) GetHostTag() string {
	hostTag := c.getString("HOST_TAG", "site.host_tag")
	if len(hostTag) == 0 {
		hostTag = defaultHostTag
	}

	return hostTag
}

func (c *Config) getString(envKey string, fileKey string) string {
	value := c.config.GetString(envKey)
	if len(value) == 0 {
		value = c.config.GetString(fileKey)
	}

	return value
}

func (c *Config) getDuration(envKey string, fileKey string, fallback time.Duration) time.Duration {
	if c.config.IsSet(envKey) {
		return c.config.GetDuration(envKey)
	}
	if c.config.IsSet(fileKey) {
		return c.config.GetDuration(fileKey)
	}

	return fallback
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
