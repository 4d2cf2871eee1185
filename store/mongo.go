package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/finsight/assistant"
)

// MongoRunLog implements assistant.RunLog with an append-only MongoDB
// collection of agent run records.
type MongoRunLog struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "finsight",
		Collection: "agent_runs",
	}
}

// NewMongoRunLog creates a new MongoDB-backed run log
func NewMongoRunLog(config *MongoConfig) (*MongoRunLog, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(config.Database).Collection(config.Collection)

	log := &MongoRunLog{
		client:     client,
		collection: collection,
	}

	if err := log.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return log, nil
}

func (l *MongoRunLog) createIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := l.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Record appends one run entry.
func (l *MongoRunLog) Record(ctx context.Context, entry assistant.RunEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, err := l.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Close disconnects the MongoDB client.
func (l *MongoRunLog) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}
