package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/keibastalk/internal/types"
)

// MongoSink mirrors normalized tables into MongoDB, one collection per table.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
	count  int
	logger *slog.Logger
}

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(uri, database string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoSink{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "mongo_sink"),
	}, nil
}

func (s *MongoSink) Name() string { return "mongodb" }

// Write replaces the collection named after the table with its rows.
func (s *MongoSink) Write(ctx context.Context, t *types.Table) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	coll := s.db.Collection(t.Name)
	if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("clear %s: %w", t.Name, err)}
	}
	if t.Len() == 0 {
		return nil
	}

	docs := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		doc := make(bson.D, 0, len(t.Columns))
		for j, col := range t.Columns {
			doc = append(doc, bson.E{Key: col, Value: documentValue(col, row[j])})
		}
		docs[i] = doc
	}

	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("insert %s: %w", t.Name, err)}
	}

	s.count += len(docs)
	s.logger.Info("table stored in mongodb", "collection", t.Name, "rows", len(docs))
	return nil
}

func (s *MongoSink) Close() error {
	s.logger.Info("mongodb sink closing", "total_rows", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// documentValue converts a formatted cell back into a typed BSON value.
// Identifier columns are digit strings and stay strings.
func documentValue(column, cell string) any {
	if cell == "" {
		return nil
	}
	if strings.HasSuffix(column, "_id") {
		return cell
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

// --- Multi-Sink Fan-Out ---

// MultiSink writes tables to multiple sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a sink that fans out to multiple backends.
func NewMultiSink(sinks []Sink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

func (s *MultiSink) Write(ctx context.Context, t *types.Table) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, t); err != nil {
			s.logger.Error("sink write failed", "sink", sink.Name(), "table", t.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
