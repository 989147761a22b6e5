package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"playersync/pkg/model"
)

// uriEnv names a disposable database the suite may truncate
const uriEnv = "PLAYERSYNC_TEST_POSTGRES_URI"

type StoreSuite struct {
	suite.Suite
	ctx    context.Context
	store  *Store
	clock  time.Time
	player uuid.UUID
}

func TestStoreSuite(t *testing.T) {
	if os.Getenv(uriEnv) == "" {
		t.Skipf("%s not set", uriEnv)
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()
	st, err := Connect(s.ctx, Config{URI: os.Getenv(uriEnv), MaxConns: 4})
	s.Require().NoError(err)
	s.Require().NoError(st.Migrate(s.ctx))
	s.store = st
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close(s.ctx)
	}
}

func (s *StoreSuite) SetupTest() {
	tables := make([]string, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		tables = append(tables, table(kind))
	}
	_, err := s.store.pool.Exec(s.ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY")
	s.Require().NoError(err)

	s.clock = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.store.now = func() time.Time { return s.clock }
	s.player = uuid.New()
}

func (s *StoreSuite) tick() {
	s.clock = s.clock.Add(time.Second)
}

func (s *StoreSuite) TestGetBalanceMissing() {
	_, err := s.store.GetBalance(s.ctx, s.player)
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *StoreSuite) TestCreateBalanceKeepsExisting() {
	v, err := s.store.CreateBalance(s.ctx, s.player, 1000)
	s.Require().NoError(err)
	s.Equal(1000.0, v)

	s.tick()
	v, err = s.store.CreateBalance(s.ctx, s.player, 5)
	s.Require().NoError(err)
	s.Equal(1000.0, v)

	rec, err := s.store.GetBalance(s.ctx, s.player)
	s.Require().NoError(err)
	s.Equal(s.player, rec.Player)
	s.Equal(1000.0, rec.Balance)
	s.True(rec.CreatedAt.Equal(s.clock.Add(-time.Second)))
}

func (s *StoreSuite) TestSetBalanceReportsMatch() {
	matched, err := s.store.SetBalance(s.ctx, s.player, 10)
	s.Require().NoError(err)
	s.False(matched)

	s.tick()
	matched, err = s.store.SetBalance(s.ctx, s.player, 20)
	s.Require().NoError(err)
	s.True(matched)

	rec, err := s.store.GetBalance(s.ctx, s.player)
	s.Require().NoError(err)
	s.Equal(20.0, rec.Balance)
	s.True(rec.UpdatedAt.After(rec.CreatedAt))
}

func (s *StoreSuite) TestIncrementBalance() {
	cases := []struct {
		name  string
		delta float64
		want  float64
	}{
		{"creates missing record at starting plus delta", 250, 1250},
		{"adds to existing record", 0.5, 1250.5},
		{"negative delta debits", -1000.25, 250.25},
	}
	for _, tc := range cases {
		got, err := s.store.IncrementBalance(s.ctx, s.player, tc.delta, 1000)
		s.Require().NoError(err, tc.name)
		s.Equal(tc.want, got, tc.name)
	}

	rec, err := s.store.GetBalance(s.ctx, s.player)
	s.Require().NoError(err)
	s.Equal(250.25, rec.Balance)
}

func (s *StoreSuite) TestSaveSnapshotUpserts() {
	matched, err := s.store.SaveSnapshot(s.ctx, model.KindInventory, s.player, "pvp", "[]")
	s.Require().NoError(err)
	s.False(matched)

	s.tick()
	matched, err = s.store.SaveSnapshot(s.ctx, model.KindInventory, s.player, "pvp", "[null]")
	s.Require().NoError(err)
	s.True(matched)

	rec, err := s.store.GetSnapshot(s.ctx, model.KindInventory, s.player, "pvp")
	s.Require().NoError(err)
	s.Equal("[null]", rec.Data)
	s.Equal(model.KindInventory, rec.Kind)
	s.True(rec.UpdatedAt.After(rec.CreatedAt))

	_, err = s.store.GetSnapshot(s.ctx, model.KindEnderChest, s.player, "pvp")
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *StoreSuite) TestUpdateAndDeleteSnapshot() {
	matched, err := s.store.UpdateSnapshot(s.ctx, model.KindInventory, s.player, "pvp", "[]")
	s.Require().NoError(err)
	s.False(matched)

	_, err = s.store.SaveSnapshot(s.ctx, model.KindInventory, s.player, "pvp", "[]")
	s.Require().NoError(err)
	matched, err = s.store.UpdateSnapshot(s.ctx, model.KindInventory, s.player, "pvp", "[null,null]")
	s.Require().NoError(err)
	s.True(matched)

	deleted, err := s.store.DeleteSnapshot(s.ctx, model.KindInventory, s.player, "pvp")
	s.Require().NoError(err)
	s.True(deleted)
	deleted, err = s.store.DeleteSnapshot(s.ctx, model.KindInventory, s.player, "pvp")
	s.Require().NoError(err)
	s.False(deleted)
}

func (s *StoreSuite) TestListSnapshotsCreationOrder() {
	names, err := s.store.ListSnapshots(s.ctx, model.KindEnderChest, s.player)
	s.Require().NoError(err)
	s.NotNil(names)
	s.Empty(names)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.store.SaveSnapshot(s.ctx, model.KindEnderChest, s.player, name, "[]")
		s.Require().NoError(err)
		s.tick()
	}
	// Re-saving keeps the original position
	_, err = s.store.SaveSnapshot(s.ctx, model.KindEnderChest, s.player, "zeta", "[null]")
	s.Require().NoError(err)

	names, err = s.store.ListSnapshots(s.ctx, model.KindEnderChest, s.player)
	s.Require().NoError(err)
	s.Equal([]string{"zeta", "alpha", "mid"}, names)

	count, err := s.store.DeleteAllSnapshots(s.ctx, model.KindEnderChest, s.player)
	s.Require().NoError(err)
	s.Equal(int64(3), count)
}

func (s *StoreSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}

func TestIncrementCastsArithmeticParameters(t *testing.T) {
	q := incrementQuery()
	assert.Contains(t, q, "$2::double precision + $3::double precision")
	assert.Contains(t, q, "e.balance + $3::double precision")
}
