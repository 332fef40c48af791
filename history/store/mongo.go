package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docsage/docsage/config"
	pkgerrors "github.com/docsage/docsage/errors"
	"github.com/docsage/docsage/history"
)

// MongoStore implements history.Store on MongoDB.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns a configuration for a local server.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "docsage",
		Collection: "answer_sessions",
	}
}

// mongoRecord is the collection document shape.
type mongoRecord struct {
	ID         string    `bson:"_id"`
	Question   string    `bson:"question"`
	Answer     string    `bson:"answer"`
	Sources    []string  `bson:"sources"`
	RoundsUsed int       `bson:"rounds_used"`
	Confidence float64   `bson:"confidence"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toMongoRecord(rec *history.Record) mongoRecord {
	return mongoRecord{
		ID:         rec.ID,
		Question:   rec.Question,
		Answer:     rec.Answer,
		Sources:    rec.Sources,
		RoundsUsed: rec.RoundsUsed,
		Confidence: rec.Confidence,
		CreatedAt:  rec.CreatedAt,
	}
}

func (m mongoRecord) toRecord() *history.Record {
	return &history.Record{
		ID:         m.ID,
		Question:   m.Question,
		Answer:     m.Answer,
		Sources:    m.Sources,
		RoundsUsed: m.RoundsUsed,
		Confidence: m.Confidence,
		CreatedAt:  m.CreatedAt,
	}
}

// NewMongoStore connects to MongoDB and prepares the sessions collection.
func NewMongoStore(cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}
	if err := config.ValidateMongoConfig(cfg.URI, cfg.Database, cfg.Collection); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := store.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}
	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// Save persists the record, replacing any record with the same ID.
func (s *MongoStore) Save(ctx context.Context, rec *history.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": rec.ID}
	if _, err := s.collection.ReplaceOne(ctx, filter, toMongoRecord(rec), opts); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get returns the record by ID.
func (s *MongoStore) Get(ctx context.Context, id string) (*history.Record, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return doc.toRecord(), nil
}

// List returns up to limit records, newest first.
func (s *MongoStore) List(ctx context.Context, limit int) ([]*history.Record, error) {
	findOpts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}

	records := make([]*history.Record, len(docs))
	for i, doc := range docs {
		records[i] = doc.toRecord()
	}
	return records, nil
}

// Delete removes the record by ID.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

// Clear removes all records.
func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(count), nil
}

// Ping checks the MongoDB connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}
