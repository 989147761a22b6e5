// Package changestream tails MongoDB change streams on the player collections
package changestream

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Operation types the watcher forwards
const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpReplace = "replace"
	OpDelete  = "delete"
)

// ChangeEvent represents a MongoDB change stream event
type ChangeEvent struct {
	ID            string                 `json:"id"`
	OperationType string                 `json:"operation_type"`
	Namespace     Namespace              `json:"namespace"`
	DocumentKey   map[string]interface{} `json:"document_key"`
	FullDocument  map[string]interface{} `json:"full_document"`
	BeforeChange  map[string]interface{} `json:"before_change,omitempty"`
	ClusterTime   primitive.Timestamp    `json:"cluster_time"`
	ResumeToken   bson.Raw               `json:"-"`
}

// Document returns the post-image, or the pre-image for deletes
func (e ChangeEvent) Document() map[string]interface{} {
	if len(e.FullDocument) > 0 {
		return e.FullDocument
	}
	return e.BeforeChange
}

type Namespace struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// Watcher defines the interface for monitoring MongoDB change streams
type Watcher interface {
	// Watch starts monitoring the change stream from the given resume token.
	// Returns a channel of change events and an error channel.
	Watch(ctx context.Context, resumeToken bson.Raw) (<-chan ChangeEvent, <-chan error)

	// Close gracefully shuts down the watcher
	Close() error
}

// MongoWatcher watches selected collections of one database
type MongoWatcher struct {
	db          *mongo.Database
	collections []string

	mu     sync.Mutex
	stream *mongo.ChangeStream
}

// NewMongoWatcher creates a watcher over the named collections of db
func NewMongoWatcher(db *mongo.Database, collections ...string) *MongoWatcher {
	return &MongoWatcher{
		db:          db,
		collections: collections,
	}
}

// Pipeline filters the stream to the watched collections and data changes
func (w *MongoWatcher) Pipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: w.collections}}},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{OpInsert, OpUpdate, OpReplace, OpDelete}}}},
		}}},
	}
}

// Watch starts monitoring the change stream
func (w *MongoWatcher) Watch(ctx context.Context, resumeToken bson.Raw) (<-chan ChangeEvent, <-chan error) {
	eventChan := make(chan ChangeEvent)
	errChan := make(chan error, 1)

	go func() {
		defer close(eventChan)
		defer close(errChan)

		opts := options.ChangeStream().
			SetFullDocument(options.UpdateLookup).
			SetFullDocumentBeforeChange(options.WhenAvailable)
		if resumeToken != nil {
			opts.SetResumeAfter(resumeToken)
		}

		stream, err := w.db.Watch(ctx, w.Pipeline(), opts)
		if err != nil {
			errChan <- fmt.Errorf("failed to open change stream: %w", err)
			return
		}
		w.mu.Lock()
		w.stream = stream
		w.mu.Unlock()
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			event, err := parseEvent(stream.Current)
			if err != nil {
				errChan <- fmt.Errorf("failed to parse change event: %w", err)
				return
			}

			// Attach the actual resume token from the stream
			event.ResumeToken = stream.ResumeToken()

			select {
			case eventChan <- event:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			errChan <- fmt.Errorf("change stream error: %w", err)
		}
	}()

	return eventChan, errChan
}

func parseEvent(raw bson.Raw) (ChangeEvent, error) {
	var event struct {
		ID                       bson.RawValue          `bson:"_id"`
		OperationType            string                 `bson:"operationType"`
		FullDocument             map[string]interface{} `bson:"fullDocument"`
		FullDocumentBeforeChange map[string]interface{} `bson:"fullDocumentBeforeChange"`
		DocumentKey              map[string]interface{} `bson:"documentKey"`
		ClusterTime              primitive.Timestamp    `bson:"clusterTime"`
		Namespace                struct {
			DB   string `bson:"db"`
			Coll string `bson:"coll"`
		} `bson:"ns"`
	}

	if err := bson.Unmarshal(raw, &event); err != nil {
		return ChangeEvent{}, err
	}

	return ChangeEvent{
		ID:            eventID(event.ID),
		OperationType: event.OperationType,
		FullDocument:  event.FullDocument,
		BeforeChange:  event.FullDocumentBeforeChange,
		DocumentKey:   event.DocumentKey,
		ClusterTime:   event.ClusterTime,
		Namespace: Namespace{
			Database:   event.Namespace.DB,
			Collection: event.Namespace.Coll,
		},
	}, nil
}

// eventID renders the event _id: an ObjectID, or the "_data" of a resume token document
func eventID(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if doc, ok := v.DocumentOK(); ok {
		if data, ok := doc.Lookup("_data").StringValueOK(); ok {
			return data
		}
		return doc.String()
	}
	if str, ok := v.StringValueOK(); ok {
		return str
	}
	return v.String()
}

// Close gracefully shuts down the watcher
func (w *MongoWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream != nil {
		return w.stream.Close(context.Background())
	}
	return nil
}
