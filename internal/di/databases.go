package di

import (
	"fmt"

	"github.com/aristath/warden/internal/clientdata"
	"github.com/aristath/warden/internal/config"
	"github.com/aristath/warden/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the cache database, applies its schema and
// creates the repository on top of it
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}

	if err := cacheDB.Migrate(); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}

	container.CacheDB = cacheDB
	container.CacheRepo = clientdata.NewRepository(cacheDB.Conn())

	log.Info().Str("path", cacheDB.Path()).Msg("Cache database initialized")

	return container, nil
}
