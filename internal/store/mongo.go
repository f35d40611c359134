package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
)

// MongoSink appends records as documents, one collection per measurement family
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoSink connects to uri and verifies the server is reachable
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.LogInfo("Connected to MongoDB database %s", database)
	return &MongoSink{
		client: client,
		db:     client.Database(database),
	}, nil
}

// document renders a record the way the dashboard queries it:
// {type, <field>, timestamp}
func document(r Record) bson.D {
	return bson.D{
		{Key: "type", Value: r.Type},
		{Key: r.Field, Value: r.Value},
		{Key: "timestamp", Value: r.Timestamp},
	}
}

// Append inserts one document into the record's collection
func (s *MongoSink) Append(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := s.db.Collection(r.Collection).InsertOne(ctx, document(r)); err != nil {
		return bridgeerrors.NewPersistenceError("insert", err, r.Collection, r.Type)
	}
	return nil
}

// Close disconnects the client
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
