package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	UsersCollection  = "users"
	VideosCollection = "videos"
)

type userDoc struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Username     string        `bson:"username"`
	Email        string        `bson:"email"`
	FullName     string        `bson:"fullName"`
	Avatar       string        `bson:"avatar"`
	CoverImage   string        `bson:"coverImage"`
	Password     string        `bson:"password"`
	RefreshToken string        `bson:"refreshToken"`
	WatchHistory []watchDoc    `bson:"watchHistory"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

type watchDoc struct {
	Video     bson.ObjectID `bson:"video"`
	WatchedAt time.Time     `bson:"watchedAt"`
}

type videoDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	Title     string        `bson:"title"`
	VideoFile string        `bson:"videoFile"`
	Thumbnail string        `bson:"thumbnail"`
	Duration  float64       `bson:"duration"`
	Owner     bson.ObjectID `bson:"owner"`
}

func (d *userDoc) toModel() *models.User {
	return &models.User{
		ID:            d.ID.Hex(),
		Username:      d.Username,
		Email:         d.Email,
		FullName:      d.FullName,
		AvatarURL:     d.Avatar,
		CoverImageURL: d.CoverImage,
		PasswordHash:  d.Password,
		RefreshToken:  d.RefreshToken,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoRepository keeps each account as one document, so every refresh token
// write is a single-document update.
type MongoRepository struct {
	users  *mongo.Collection
	videos *mongo.Collection
	now    func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		users:  db.Collection(UsersCollection),
		videos: db.Collection(VideosCollection),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique username and email indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := r.now()
	doc := userDoc{
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
		Avatar:       user.AvatarURL,
		CoverImage:   user.CoverImageURL,
		Password:     user.PasswordHash,
		WatchHistory: []watchDoc{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		return nil, mapMongoError(err)
	}

	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, fmt.Errorf("db error: unexpected inserted id %T", res.InsertedID)
	}
	user.ID = id.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return user, nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoRepository) GetUserByLogin(ctx context.Context, identifier string) (*models.User, error) {
	return r.findOne(ctx, loginFilter(identifier))
}

func loginFilter(identifier string) bson.M {
	if IsEmailLogin(identifier) {
		return bson.M{"email": identifier}
	}
	return bson.M{"username": identifier}
}

func (r *MongoRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	n, err := r.users.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *MongoRepository) UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error) {
	return r.updateOne(ctx, id, bson.M{"fullName": fullName, "email": email})
}

func (r *MongoRepository) UpdateAvatar(ctx context.Context, id, url string) (*models.User, error) {
	return r.updateOne(ctx, id, bson.M{"avatar": url})
}

func (r *MongoRepository) UpdateCoverImage(ctx context.Context, id, url string) (*models.User, error) {
	return r.updateOne(ctx, id, bson.M{"coverImage": url})
}

func (r *MongoRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.updateOne(ctx, id, bson.M{"password": hash})
	return err
}

func (r *MongoRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.setToken(ctx, id, bson.M{}, token)
}

func (r *MongoRepository) GetRefreshToken(ctx context.Context, id string) (string, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return "", common.ErrorNotFound
	}
	var doc userDoc
	err = r.users.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"refreshToken": 1})).Decode(&doc)
	if err != nil {
		return "", mapMongoError(err)
	}
	return doc.RefreshToken, nil
}

func (r *MongoRepository) ClearRefreshToken(ctx context.Context, id string) error {
	return r.setToken(ctx, id, bson.M{}, "")
}

// SwapRefreshToken filters on the expected value, so the document-level
// atomicity of UpdateOne lets only one of several concurrent swaps match.
func (r *MongoRepository) SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	err := r.setToken(ctx, id, bson.M{"refreshToken": expected}, next)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *MongoRepository) WatchHistory(ctx context.Context, id string) ([]models.WatchHistoryEntry, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, common.ErrorNotFound
	}

	var doc userDoc
	err = r.users.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"watchHistory": 1})).Decode(&doc)
	if err != nil {
		return nil, mapMongoError(err)
	}
	if len(doc.WatchHistory) == 0 {
		return []models.WatchHistoryEntry{}, nil
	}

	videoIDs := make([]bson.ObjectID, 0, len(doc.WatchHistory))
	for _, w := range doc.WatchHistory {
		videoIDs = append(videoIDs, w.Video)
	}
	var videos []videoDoc
	if err := r.findAll(ctx, r.videos, bson.M{"_id": bson.M{"$in": videoIDs}}, &videos); err != nil {
		return nil, err
	}
	byVideo := make(map[bson.ObjectID]videoDoc, len(videos))
	ownerIDs := make([]bson.ObjectID, 0, len(videos))
	for _, v := range videos {
		byVideo[v.ID] = v
		ownerIDs = append(ownerIDs, v.Owner)
	}

	var owners []userDoc
	if err := r.findAll(ctx, r.users, bson.M{"_id": bson.M{"$in": ownerIDs}}, &owners); err != nil {
		return nil, err
	}
	byOwner := make(map[bson.ObjectID]userDoc, len(owners))
	for _, o := range owners {
		byOwner[o.ID] = o
	}

	return joinHistory(doc.WatchHistory, byVideo, byOwner), nil
}

func (r *MongoRepository) AppendWatchHistory(ctx context.Context, id, videoID string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return common.ErrorNotFound
	}
	vid, err := bson.ObjectIDFromHex(videoID)
	if err != nil {
		return common.ErrorNotFound
	}

	n, err := r.videos.CountDocuments(ctx, bson.M{"_id": vid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	res, err := r.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$push": bson.M{"watchHistory": watchDoc{Video: vid, WatchedAt: r.now()}},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// joinHistory resolves history items against the loaded videos and owners,
// newest first. Items whose video is gone are dropped.
func joinHistory(history []watchDoc, videos map[bson.ObjectID]videoDoc, owners map[bson.ObjectID]userDoc) []models.WatchHistoryEntry {
	entries := make([]models.WatchHistoryEntry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		w := history[i]
		v, ok := videos[w.Video]
		if !ok {
			continue
		}
		o := owners[v.Owner]
		entries = append(entries, models.WatchHistoryEntry{
			VideoID:        v.ID.Hex(),
			Title:          v.Title,
			VideoURL:       v.VideoFile,
			ThumbnailURL:   v.Thumbnail,
			Duration:       v.Duration,
			OwnerID:        v.Owner.Hex(),
			OwnerUsername:  o.Username,
			OwnerAvatarURL: o.Avatar,
			WatchedAt:      w.WatchedAt,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].WatchedAt.After(entries[j].WatchedAt)
	})
	return entries
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.toModel(), nil
}

func (r *MongoRepository) findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, out any) error {
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MongoRepository) updateOne(ctx context.Context, id string, set bson.M) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	set["updatedAt"] = r.now()

	var doc userDoc
	err = r.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, mapMongoError(err)
	}
	return doc.toModel(), nil
}

// setToken writes only the refreshToken field of the document matching id
// plus any extra filter conditions.
func (r *MongoRepository) setToken(ctx context.Context, id string, filter bson.M, token string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return common.ErrorNotFound
	}
	filter["_id"] = oid

	res, err := r.users.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"refreshToken": token}})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func mapMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return common.ErrorNotFound
	case mongo.IsDuplicateKeyError(err):
		return common.ErrConflict
	}
	return fmt.Errorf("db error: %w", err)
}
