package database

import (
	"context"
	"fmt"

	"pharmacy-cart-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ActivityCollection = "activity"
	DefaultRecentLimit = 50
)

// Journal records what workers did through the gateway: checkouts and
// stock request submissions.
type Journal struct {
	coll *mongo.Collection
}

func NewJournal(db *mongo.Database) *Journal {
	return &Journal{coll: db.Collection(ActivityCollection)}
}

// EnsureIndexes creates the index Recent relies on.
func (j *Journal) EnsureIndexes(ctx context.Context) error {
	_, err := j.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userID", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create activity index: %w", err)
	}
	return nil
}

func (j *Journal) Record(ctx context.Context, a models.Activity) error {
	if _, err := j.coll.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to record %s activity: %w", a.Kind, err)
	}
	return nil
}

// Recent returns the worker's latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, userID string, limit int64) ([]models.Activity, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cursor, err := j.coll.Find(ctx, bson.M{"userID": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []models.Activity{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	return entries, nil
}

// NopJournal is used when no database is configured.
type NopJournal struct{}

func (NopJournal) Record(ctx context.Context, a models.Activity) error { return nil }

func (NopJournal) Recent(ctx context.Context, userID string, limit int64) ([]models.Activity, error) {
	return []models.Activity{}, nil
}
