package commands

import (
	"fmt"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/backing"
	"github.com/marmos91/dittobroker/pkg/backing/gormdb"
	"github.com/marmos91/dittobroker/pkg/backing/memory"
	"github.com/marmos91/dittobroker/pkg/backing/pgxconn"
	"github.com/marmos91/dittobroker/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// backingRegistry knows every built-in resource factory.
func backingRegistry() *backing.Registry {
	r := backing.NewRegistry()
	r.Register("memory", memory.Constructor)
	r.Register("sqlite", gormdb.SQLiteConstructor)
	r.Register("postgres", gormdb.PostgresConstructor)
	r.Register("pgx", pgxconn.Constructor)
	return r
}

// configSource describes where the configuration came from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
