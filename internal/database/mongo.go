package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harvestly/harvestly/internal/config"
	"github.com/harvestly/harvestly/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UsersCollection is the collection holding account documents
const UsersCollection = "users"

// MongoDB wraps a connected client and the application database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	logger   *slog.Logger
}

// ConnectMongo dials cfg.MongoURI, pings the primary and ensures indexes
func ConnectMongo(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(uint64(cfg.MaxConns))

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongo: %w", err)
	}

	db := &MongoDB{
		Client:   client,
		Database: client.Database(cfg.MongoDatabase),
		logger:   logger,
	}

	if err := EnsureUserIndexes(ctx, db.Database.Collection(UsersCollection)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongo connection established", slog.String("database", cfg.MongoDatabase))
	return db, nil
}

// EnsureUserIndexes creates the unique email index that backs duplicate
// detection, plus lookup indexes for the single-use token digests.
func EnsureUserIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys: bson.D{{Key: "verification_token_hash", Value: 1}},
			Options: options.Index().SetName("verification_token_hash").
				SetPartialFilterExpression(bson.M{"verification_token_hash": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "password_reset_token_hash", Value: 1}},
			Options: options.Index().SetName("password_reset_token_hash").
				SetPartialFilterExpression(bson.M{"password_reset_token_hash": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// MapMongoError translates driver errors into model sentinels
func MapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrConflict
	}
	return err
}

func (db *MongoDB) Close(ctx context.Context) error {
	db.logger.Info("closing mongo connection")
	return db.Client.Disconnect(ctx)
}

func (db *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo health check failed: %w", err)
	}
	return nil
}
