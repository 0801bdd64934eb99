package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultListLimit = 50

// Store persists audit records in MongoDB.
type Store struct {
	client  *mongo.Client
	records *mongo.Collection
}

// NewStore connects to MongoDB and ensures the record indexes exist.
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{
		client:  client,
		records: client.Database(dbName).Collection("analysis_records"),
	}
	if err := store.createIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "outcome", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create analysis_records indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Save inserts a record, stamping its id and creation time.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	rec.ID = primitive.NewObjectID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Tables == nil {
		rec.Tables = []string{}
	}
	_, err := s.records.InsertOne(ctx, rec)
	return err
}

// Get retrieves a record by request id. A missing record is (nil, nil).
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	var rec Record
	err := s.records.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	cursor, err := s.records.Find(ctx, filter.query(), filter.findOptions())
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []Record
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CountByOutcome summarizes records since the given time.
func (s *Store) CountByOutcome(ctx context.Context, since time.Time) ([]OutcomeCount, error) {
	cursor, err := s.records.Aggregate(ctx, outcomePipeline(since))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var counts []OutcomeCount
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (f Filter) query() bson.M {
	query := bson.M{}
	if f.Outcome != "" {
		query["outcome"] = f.Outcome
	}
	if f.Principal != "" {
		query["principal"] = f.Principal
	}
	if !f.Since.IsZero() {
		query["created_at"] = bson.M{"$gte": f.Since}
	}
	return query
}

func (f Filter) findOptions() *options.FindOptions {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(f.Offset))
}

func outcomePipeline(since time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	if !since.IsZero() {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gte": since}}}})
	}
	return append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$outcome"},
			{Key: "count", Value: bson.M{"$sum": 1}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)
}
