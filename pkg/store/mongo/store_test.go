package mongo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"playersync/pkg/model"
)

const (
	economyNS   = "playersync.economy"
	inventoryNS = "playersync.inventories"
)

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	player := uuid.New()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("get balance", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, economyNS, mtest.FirstBatch, bson.D{
			{Key: "player_uuid", Value: player.String()},
			{Key: "balance", Value: 1250.5},
			{Key: "created_at", Value: created},
			{Key: "updated_at", Value: created},
		}))

		rec, err := s.GetBalance(mt.Context(), player)
		require.NoError(mt, err)
		assert.Equal(mt, player, rec.Player)
		assert.Equal(mt, 1250.5, rec.Balance)
		assert.True(mt, created.Equal(rec.CreatedAt))
	})

	mt.Run("get balance missing", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, economyNS, mtest.FirstBatch))

		_, err := s.GetBalance(mt.Context(), player)
		assert.ErrorIs(mt, err, model.ErrNotFound)
	})

	mt.Run("get balance driver error", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Message: "shutdown in progress",
		}))

		_, err := s.GetBalance(mt.Context(), player)
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, model.ErrNotFound)
	})

	mt.Run("create balance returns stored value", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "player_uuid", Value: player.String()},
			{Key: "balance", Value: 42.0},
		}}))

		balance, err := s.CreateBalance(mt.Context(), player, 1000)
		require.NoError(mt, err)
		assert.Equal(mt, 42.0, balance)
	})

	mt.Run("set balance matched", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		matched, err := s.SetBalance(mt.Context(), player, 10)
		require.NoError(mt, err)
		assert.True(mt, matched)
	})

	mt.Run("set balance upserted", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "x"}}}},
		))

		matched, err := s.SetBalance(mt.Context(), player, 10)
		require.NoError(mt, err)
		assert.False(mt, matched)
	})

	mt.Run("increment existing", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "balance", Value: 1250.0},
		}}))

		balance, err := s.IncrementBalance(mt.Context(), player, 250, 1000)
		require.NoError(mt, err)
		assert.Equal(mt, 1250.0, balance)
	})

	mt.Run("increment creates missing record", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "balance", Value: 1000.0}}}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "balance", Value: 1250.0}}}),
		)

		balance, err := s.IncrementBalance(mt.Context(), player, 250, 1000)
		require.NoError(mt, err)
		assert.Equal(mt, 1250.0, balance)
	})

	mt.Run("get snapshot", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, inventoryNS, mtest.FirstBatch, bson.D{
			{Key: "player_uuid", Value: player.String()},
			{Key: "name", Value: "pvp"},
			{Key: "data", Value: `[null]`},
			{Key: "created_at", Value: created},
			{Key: "updated_at", Value: created},
		}))

		rec, err := s.GetSnapshot(mt.Context(), model.KindInventory, player, "pvp")
		require.NoError(mt, err)
		assert.Equal(mt, model.KindInventory, rec.Kind)
		assert.Equal(mt, "pvp", rec.Name)
		assert.Equal(mt, `[null]`, rec.Data)
	})

	mt.Run("get snapshot missing", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, inventoryNS, mtest.FirstBatch))

		_, err := s.GetSnapshot(mt.Context(), model.KindInventory, player, "pvp")
		assert.ErrorIs(mt, err, model.ErrNotFound)
	})

	mt.Run("update snapshot without match", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		matched, err := s.UpdateSnapshot(mt.Context(), model.KindInventory, player, "pvp", "[]")
		require.NoError(mt, err)
		assert.False(mt, matched)
	})

	mt.Run("delete snapshot", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		deleted, err := s.DeleteSnapshot(mt.Context(), model.KindInventory, player, "pvp")
		require.NoError(mt, err)
		assert.True(mt, deleted)
	})

	mt.Run("delete all snapshots", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		count, err := s.DeleteAllSnapshots(mt.Context(), model.KindEnderChest, player)
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), count)
	})

	mt.Run("list snapshots keeps store order", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, inventoryNS, mtest.FirstBatch,
			bson.D{{Key: "name", Value: "backup_pvp_2024-05-01_10-00-00"}},
			bson.D{{Key: "name", Value: "backup_pvp_2024-05-02_10-00-00"}},
		))

		names, err := s.ListSnapshots(mt.Context(), model.KindInventory, player)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"backup_pvp_2024-05-01_10-00-00", "backup_pvp_2024-05-02_10-00-00"}, names)
	})

	mt.Run("list snapshots empty", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, inventoryNS, mtest.FirstBatch))

		names, err := s.ListSnapshots(mt.Context(), model.KindInventory, player)
		require.NoError(mt, err)
		assert.NotNil(mt, names)
		assert.Empty(mt, names)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		s := NewWithDatabase(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
		)

		require.NoError(mt, s.EnsureIndexes(mt.Context()))
	})
}
