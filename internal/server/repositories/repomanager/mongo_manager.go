package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/users"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRepositoryManager vends MongoDB-backed repositories. Its migration
// step only creates indexes.
type MongoRepositoryManager struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoRepositoryManager(client *mongo.Client, database string) *MongoRepositoryManager {
	return &MongoRepositoryManager{client: client, db: client.Database(database)}
}

// OpenMongo connects and pings the deployment.
func OpenMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (m *MongoRepositoryManager) Users() users.Repository {
	return users.NewMongoRepository(m.db)
}

func (m *MongoRepositoryManager) Subscriptions() subscriptions.Repository {
	return subscriptions.NewMongoRepository(m.db, users.UsersCollection)
}

// ensureIndexes is a seam for tests without a server.
var ensureIndexes = []func(context.Context, *mongo.Database) error{
	users.EnsureIndexes,
	subscriptions.EnsureIndexes,
}

func (m *MongoRepositoryManager) RunMigrations(ctx context.Context) error {
	for _, ensure := range ensureIndexes {
		if err := ensure(ctx, m.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
