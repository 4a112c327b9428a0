package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/harvestly/harvestly/internal/database"
	"github.com/harvestly/harvestly/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserRepository stores accounts as documents in the users collection
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *database.MongoDB) *MongoUserRepository {
	return NewMongoUserRepositoryFromCollection(db.Database.Collection(database.UsersCollection))
}

// NewMongoUserRepositoryFromCollection is used by tests against a scratch collection
func NewMongoUserRepositoryFromCollection(coll *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll}
}

var returnAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, database.MapMongoError(err)
	}
	return &user, nil
}

func (r *MongoUserRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.User, error) {
	var user models.User
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, returnAfter).Decode(&user); err != nil {
		return nil, database.MapMongoError(err)
	}
	return &user, nil
}

func (r *MongoUserRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return database.MapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	users := make([]*models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (r *MongoUserRepository) Count(ctx context.Context) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, database.MapMongoError(err)
	}
	return total, nil
}

// Create inserts the document. A concurrent insert with the same email loses
// on the unique index and comes back as models.ErrConflict.
func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	// Mongo stores milliseconds; truncate so the returned copy matches a re-read
	prepareNewUser(user, time.Now().UTC().Truncate(time.Millisecond))

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		return nil, database.MapMongoError(err)
	}

	created := *user
	return &created, nil
}

// UpdateProfile $sets only the patched fields; the rest of the document is never written
func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	for field, value := range map[string]*string{
		"first_name": patch.FirstName,
		"last_name":  patch.LastName,
		"phone":      patch.Phone,
		"state":      patch.State,
		"role":       patch.Role,
	} {
		if value != nil && *value != "" {
			set[field] = *value
		}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

func (r *MongoUserRepository) SetProfilePicture(ctx context.Context, id, url string) (*models.User, error) {
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"profile_picture": url,
		"updated_at":      time.Now().UTC(),
	}})
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"password_hash":       passwordHash,
		"password_changed_at": at,
		"tokens_valid_after":  at,
		"updated_at":          at,
	}})
}

func (r *MongoUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"last_login": at}})
}

func (r *MongoUserRepository) RevokeTokens(ctx context.Context, id string, at time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"tokens_valid_after": at, "updated_at": at}})
}

func (r *MongoUserRepository) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"password_reset_token_hash": tokenHash,
		"password_reset_expires":    expires,
	}})
}

// ConsumePasswordReset matches on digest and expiry and clears the token in
// one FindOneAndUpdate, so only one caller can win.
func (r *MongoUserRepository) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	filter := bson.M{
		"password_reset_token_hash": tokenHash,
		"password_reset_expires":    bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"password_hash":       passwordHash,
			"password_changed_at": now,
			"tokens_valid_after":  now,
			"updated_at":          now,
		},
		"$unset": bson.M{
			"password_reset_token_hash": "",
			"password_reset_expires":    "",
		},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoUserRepository) ConsumeVerification(ctx context.Context, tokenHash string) (*models.User, error) {
	filter := bson.M{"verification_token_hash": tokenHash}
	update := bson.M{
		"$set":   bson.M{"is_verified": true, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"verification_token_hash": ""},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoUserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"password_reset_expires": bson.M{"$lte": now}},
		bson.M{"$unset": bson.M{"password_reset_token_hash": "", "password_reset_expires": ""}},
	)
	if err != nil {
		return 0, database.MapMongoError(err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return database.MapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
