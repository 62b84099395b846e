package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const Collection = "subscriptions"

type subscriptionDoc struct {
	Subscriber bson.ObjectID `bson:"subscriber"`
	Channel    bson.ObjectID `bson:"channel"`
	CreatedAt  time.Time     `bson:"createdAt"`
}

type MongoRepository struct {
	subs  *mongo.Collection
	users *mongo.Collection
}

func NewMongoRepository(db *mongo.Database, usersCollection string) *MongoRepository {
	return &MongoRepository{
		subs:  db.Collection(Collection),
		users: db.Collection(usersCollection),
	}
}

// EnsureIndexes makes (subscriber, channel) unique and keeps per-channel
// counts on an index.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(Collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "channel", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MongoRepository) Toggle(ctx context.Context, subscriberID, channelID string) (bool, error) {
	sub, ch, err := parsePair(subscriberID, channelID)
	if err != nil {
		return false, err
	}
	filter := bson.M{"subscriber": sub, "channel": ch}

	del, err := r.subs.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if del.DeletedCount > 0 {
		return false, nil
	}

	n, err := r.users.CountDocuments(ctx, bson.M{"_id": ch}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return false, common.ErrorNotFound
	}

	_, err = r.subs.InsertOne(ctx, subscriptionDoc{Subscriber: sub, Channel: ch, CreatedAt: time.Now().UTC()})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *MongoRepository) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	return r.count(ctx, "channel", channelID)
}

func (r *MongoRepository) CountSubscribedTo(ctx context.Context, subscriberID string) (int64, error) {
	return r.count(ctx, "subscriber", subscriberID)
}

func (r *MongoRepository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	sub, ch, err := parsePair(subscriberID, channelID)
	if err != nil {
		return false, nil
	}
	n, err := r.subs.CountDocuments(ctx, bson.M{"subscriber": sub, "channel": ch}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *MongoRepository) count(ctx context.Context, field, id string) (int64, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return 0, common.ErrorNotFound
	}
	n, err := r.subs.CountDocuments(ctx, bson.M{field: oid})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func parsePair(subscriberID, channelID string) (bson.ObjectID, bson.ObjectID, error) {
	sub, err := bson.ObjectIDFromHex(subscriberID)
	if err != nil {
		return bson.ObjectID{}, bson.ObjectID{}, common.ErrorNotFound
	}
	ch, err := bson.ObjectIDFromHex(channelID)
	if err != nil {
		return bson.ObjectID{}, bson.ObjectID{}, common.ErrorNotFound
	}
	return sub, ch, nil
}
