package repository

import (
	"context"
	"fmt"

	"github.com/loresmith/loresmith-be/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type QueryLogRepo interface {
	CreateQueryLog(ctx context.Context, queryLog *types.QueryLog) error
	GetQueryLog(ctx context.Context, id string) (*types.QueryLog, error)
	ListQueryLogs(ctx context.Context, collectionID string, limit, offset int) ([]*types.QueryLog, error)
	UpdateFeedback(ctx context.Context, id string, rating int, comment string) error
}

type queryLogRepo struct {
	collection *mongo.Collection
}

func NewQueryLogRepo(db *mongo.Database) (QueryLogRepo, error) {
	// check if collection does not exist, create one with its indexes
	collectionNames, err := db.ListCollectionNames(context.Background(), bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	collectionExists := false
	for _, name := range collectionNames {
		if name == "query_logs" {
			collectionExists = true
			break
		}
	}
	collection := db.Collection("query_logs")
	if !collectionExists {
		indexes := []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: "collection_id", Value: 1},
					{Key: "created_at", Value: -1},
				},
			},
			{
				Keys: bson.D{
					{Key: "created_at", Value: -1},
				},
			},
		}

		if _, err := collection.Indexes().CreateMany(context.Background(), indexes); err != nil {
			return nil, fmt.Errorf("failed to create query log indexes: %w", err)
		}
	}

	return &queryLogRepo{
		collection: collection,
	}, nil
}

func (r *queryLogRepo) CreateQueryLog(ctx context.Context, queryLog *types.QueryLog) error {
	_, err := r.collection.InsertOne(ctx, queryLog)
	return err
}

func (r *queryLogRepo) GetQueryLog(ctx context.Context, id string) (*types.QueryLog, error) {
	var queryLog types.QueryLog
	err := r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&queryLog)
	if err != nil {
		return nil, err
	}
	return &queryLog, nil
}

func (r *queryLogRepo) ListQueryLogs(ctx context.Context, collectionID string, limit, offset int) ([]*types.QueryLog, error) {
	filter := bson.D{}
	if collectionID != "" {
		filter = bson.D{{Key: "collection_id", Value: collectionID}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []*types.QueryLog
	for cursor.Next(ctx) {
		var queryLog types.QueryLog
		if err := cursor.Decode(&queryLog); err != nil {
			return nil, err
		}
		logs = append(logs, &queryLog)
	}
	return logs, cursor.Err()
}

func (r *queryLogRepo) UpdateFeedback(ctx context.Context, id string, rating int, comment string) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "rating", Value: rating},
		{Key: "feedback_comment", Value: comment},
	}}}
	result, err := r.collection.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
