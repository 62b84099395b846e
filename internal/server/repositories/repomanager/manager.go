// Package repomanager vends the repositories of one storage backend and
// owns its connection and schema setup.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/users"
)

type RepositoryManager interface {
	Users() users.Repository
	Subscriptions() subscriptions.Repository
	RunMigrations(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects to the backend selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg *config.Config) (RepositoryManager, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepositoryManager(db), nil
	case config.StorageMongo:
		client, err := OpenMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		return NewMongoRepositoryManager(client, cfg.MongoDatabase), nil
	case config.StorageMemory:
		return NewMemoryRepositoryManager(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
