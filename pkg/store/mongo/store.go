// Package mongo implements the durable store on MongoDB.
//
// Balances live in the "economy" collection keyed by player_uuid. Snapshots live in
// "inventories" and "ender_chests", unique on (player_uuid, name).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"playersync/pkg/model"
	"playersync/pkg/store"
)

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store implements store.Store on a MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

type balanceDoc struct {
	Player    string    `bson:"player_uuid"`
	Balance   float64   `bson:"balance"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type snapshotDoc struct {
	Player    string    `bson:"player_uuid"`
	Name      string    `bson:"name"`
	Data      string    `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Connect dials MongoDB, verifies the connection and returns a store
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return NewWithDatabase(client.Database(cfg.Database)), nil
}

// NewWithDatabase wraps an existing database handle (for testing)
func NewWithDatabase(db *mongo.Database) *Store {
	return &Store{
		client: db.Client(),
		db:     db,
		now:    time.Now,
	}
}

// Ensure Store implements the interface
var _ store.Store = (*Store)(nil)

// Database exposes the underlying database for the change feed
func (s *Store) Database() *mongo.Database {
	return s.db
}

// EnsureIndexes creates the unique indexes the store relies on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(model.KindEconomy.Collection()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "player_uuid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create economy index: %w", err)
	}

	for _, kind := range model.SnapshotKinds {
		_, err := s.db.Collection(kind.Collection()).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "player_uuid", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create %s index: %w", kind, err)
		}
	}
	return nil
}

// Balance operations

func (s *Store) balances() *mongo.Collection {
	return s.db.Collection(model.KindEconomy.Collection())
}

func (s *Store) GetBalance(ctx context.Context, player uuid.UUID) (model.BalanceRecord, error) {
	var doc balanceDoc
	err := s.balances().FindOne(ctx, bson.D{{Key: "player_uuid", Value: player.String()}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.BalanceRecord{}, model.ErrNotFound
		}
		return model.BalanceRecord{}, err
	}
	return doc.record(player), nil
}

func (s *Store) CreateBalance(ctx context.Context, player uuid.UUID, balance float64) (float64, error) {
	now := s.now()
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "balance", Value: balance},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc balanceDoc
	err := s.balances().FindOneAndUpdate(ctx, bson.D{{Key: "player_uuid", Value: player.String()}}, update, opts).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Balance, nil
}

func (s *Store) SetBalance(ctx context.Context, player uuid.UUID, balance float64) (bool, error) {
	now := s.now()
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "balance", Value: balance}, {Key: "updated_at", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}
	res, err := s.balances().UpdateOne(ctx, bson.D{{Key: "player_uuid", Value: player.String()}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) IncrementBalance(ctx context.Context, player uuid.UUID, delta, starting float64) (float64, error) {
	balance, err := s.increment(ctx, player, delta)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return balance, err
	}

	// First touch: create with the starting balance, then apply the delta atomically
	if _, err := s.CreateBalance(ctx, player, starting); err != nil {
		return 0, err
	}
	return s.increment(ctx, player, delta)
}

func (s *Store) increment(ctx context.Context, player uuid.UUID, delta float64) (float64, error) {
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "balance", Value: delta}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: s.now()}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc balanceDoc
	if err := s.balances().FindOneAndUpdate(ctx, bson.D{{Key: "player_uuid", Value: player.String()}}, update, opts).Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Balance, nil
}

// Snapshot operations

func snapshotFilter(player uuid.UUID, name string) bson.D {
	return bson.D{{Key: "player_uuid", Value: player.String()}, {Key: "name", Value: name}}
}

func (s *Store) GetSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (model.SnapshotRecord, error) {
	var doc snapshotDoc
	err := s.db.Collection(kind.Collection()).FindOne(ctx, snapshotFilter(player, name)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.SnapshotRecord{}, model.ErrNotFound
		}
		return model.SnapshotRecord{}, err
	}
	return doc.record(kind, player), nil
}

func (s *Store) SaveSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (bool, error) {
	now := s.now()
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "data", Value: data}, {Key: "updated_at", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}
	res, err := s.db.Collection(kind.Collection()).UpdateOne(ctx, snapshotFilter(player, name), update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) UpdateSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (bool, error) {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "data", Value: data}, {Key: "updated_at", Value: s.now()}}}}
	res, err := s.db.Collection(kind.Collection()).UpdateOne(ctx, snapshotFilter(player, name), update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (bool, error) {
	res, err := s.db.Collection(kind.Collection()).DeleteOne(ctx, snapshotFilter(player, name))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) DeleteAllSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) (int64, error) {
	res, err := s.db.Collection(kind.Collection()).DeleteMany(ctx, bson.D{{Key: "player_uuid", Value: player.String()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) ListSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "name", Value: 1}})

	cur, err := s.db.Collection(kind.Collection()).Find(ctx, bson.D{{Key: "player_uuid", Value: player.String()}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	names := []string{}
	for cur.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		names = append(names, doc.Name)
	}
	return names, cur.Err()
}

// Lifecycle

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d balanceDoc) record(player uuid.UUID) model.BalanceRecord {
	return model.BalanceRecord{
		Player:    player,
		Balance:   d.Balance,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d snapshotDoc) record(kind model.Kind, player uuid.UUID) model.SnapshotRecord {
	return model.SnapshotRecord{
		Kind:      kind,
		Player:    player,
		Name:      d.Name,
		Data:      d.Data,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
