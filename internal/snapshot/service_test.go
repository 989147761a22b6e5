package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"playersync/internal/cache"
	"playersync/pkg/logger"
	"playersync/pkg/model"
	"playersync/pkg/sharedcache"
	"playersync/pkg/store/memory"
)

// failingDeletes rejects deletes of selected names
type failingDeletes struct {
	*memory.Store
	names map[string]bool
}

func (s *failingDeletes) DeleteSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (bool, error) {
	if s.names[name] {
		return false, errors.New("not primary")
	}
	return s.Store.DeleteSnapshot(ctx, kind, player, name)
}

type ServiceSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	shared  *sharedcache.Cache
	store   *failingDeletes
	cache   *cache.Cache[string]
	service *Service
	player  uuid.UUID
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.shared = sharedcache.NewWithClient(redis.NewClient(&redis.Options{Addr: s.mini.Addr()}), time.Hour)
	s.store = &failingDeletes{Store: memory.New(), names: map[string]bool{}}

	s.cache = cache.New(cache.Options[string]{
		Kind:   model.KindInventory,
		Prefix: "minecraft",
		Codec:  cache.StringCodec{},
		Loader: NewLoader(model.KindInventory, s.store),
		Shared: s.shared,
	})
	s.service = NewService(model.KindInventory, NewCachedTier(s.cache), s.store, Config{MaxNameLength: 50, AutoSaveOnQuit: true}, logger.NewNop())
	s.player = uuid.New()
	s.ctx = context.Background()
}

func (s *ServiceSuite) TearDownTest() {
	_ = s.shared.Close()
}

func (s *ServiceSuite) kit() Collection {
	return Collection{{Type: "IRON_SWORD", Amount: 1}, nil, {Type: "BREAD", Amount: 16}}
}

func (s *ServiceSuite) subscribe() sharedcache.Subscription {
	sub, err := s.shared.Subscribe(s.ctx, "minecraft:inventory")
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = sub.Close() })
	return sub
}

func (s *ServiceSuite) receive(sub sharedcache.Subscription) string {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	payload, err := sub.Receive(ctx)
	s.Require().NoError(err)
	return payload
}

func (s *ServiceSuite) TestSaveAndLoad() {
	sub := s.subscribe()
	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", s.kit()))
	s.Equal(s.player.String()+":save:pvp", s.receive(sub))

	items, err := s.service.Load(s.ctx, s.player, "pvp")
	s.Require().NoError(err)
	s.Len(items, 3)
	s.Equal("BREAD", items[2].Type)
	s.Equal(s.player.String()+":load:pvp", s.receive(sub))

	s.True(s.mini.Exists(model.KindInventory.CacheKey(model.Key{Player: s.player, Name: "pvp"})))
}

func (s *ServiceSuite) TestSaveIsAnUpsert() {
	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", s.kit()))
	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", Collection{{Type: "STONE", Amount: 1}}))

	names, err := s.service.List(s.ctx, s.player)
	s.Require().NoError(err)
	s.Equal([]string{"pvp"}, names)

	items, err := s.service.Load(s.ctx, s.player, "pvp")
	s.Require().NoError(err)
	s.Equal("STONE", items[0].Type)
}

func (s *ServiceSuite) TestInvalidNamesNeverReachTheStore() {
	for _, name := range []string{"a b", "a/b", ""} {
		s.ErrorIs(s.service.Save(s.ctx, s.player, name, s.kit()), model.ErrInvalidName)
	}
	names, err := s.service.List(s.ctx, s.player)
	s.Require().NoError(err)
	s.Empty(names)
}

func (s *ServiceSuite) TestLoadMissing() {
	_, err := s.service.Load(s.ctx, s.player, "nothing")
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ServiceSuite) TestLoadCorruptBlob() {
	_, err := s.store.SaveSnapshot(s.ctx, model.KindInventory, s.player, "broken", "{oops")
	s.Require().NoError(err)

	_, err = s.service.Load(s.ctx, s.player, "broken")
	s.ErrorIs(err, model.ErrDecode)
}

func (s *ServiceSuite) TestUpdate() {
	err := s.service.Update(s.ctx, s.player, "pvp", s.kit())
	s.ErrorIs(err, model.ErrNotFound)
	_, err = s.store.GetSnapshot(s.ctx, model.KindInventory, s.player, "pvp")
	s.ErrorIs(err, model.ErrNotFound)

	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", s.kit()))
	_, err = s.service.Load(s.ctx, s.player, "pvp")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Update(s.ctx, s.player, "pvp", Collection{nil}))
	items, err := s.service.Load(s.ctx, s.player, "pvp")
	s.Require().NoError(err)
	s.Equal(Collection{nil}, items)
}

func (s *ServiceSuite) TestDelete() {
	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", s.kit()))
	s.Require().NoError(s.service.Delete(s.ctx, s.player, "pvp"))

	_, err := s.service.Load(s.ctx, s.player, "pvp")
	s.ErrorIs(err, model.ErrNotFound)
	s.ErrorIs(s.service.Delete(s.ctx, s.player, "pvp"), model.ErrNotFound)
}

func (s *ServiceSuite) TestDeleteAllReportsFailures() {
	for _, name := range []string{"a", "b", "c"} {
		s.Require().NoError(s.service.Save(s.ctx, s.player, name, s.kit()))
	}
	s.store.names["b"] = true

	deleted, err := s.service.DeleteAll(s.ctx, s.player)
	s.Equal(2, deleted)
	s.Require().Error(err)
	s.ErrorIs(err, model.ErrUnavailable)

	names, err := s.service.List(s.ctx, s.player)
	s.Require().NoError(err)
	s.Equal([]string{"b"}, names)
}

func (s *ServiceSuite) TestClearAnnouncesAll() {
	sub := s.subscribe()
	s.service.Clear(s.ctx, s.player)
	s.Equal(s.player.String()+":clear:all", s.receive(sub))
}

func (s *ServiceSuite) TestBackupAndRestore() {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return clock }

	first, err := s.service.Backup(s.ctx, s.player, "pvp", Collection{{Type: "OLD", Amount: 1}})
	s.Require().NoError(err)
	s.Equal("backup_pvp_2024-05-01_10-00-00", first)

	clock = clock.Add(24 * time.Hour)
	_, err = s.service.Backup(s.ctx, s.player, "pvp", Collection{{Type: "NEW", Amount: 1}})
	s.Require().NoError(err)
	_, err = s.service.Backup(s.ctx, s.player, "pvpx", Collection{{Type: "OTHER", Amount: 1}})
	s.Require().NoError(err)

	// First match in creation order wins
	items, name, err := s.service.Restore(s.ctx, s.player, "pvp")
	s.Require().NoError(err)
	s.Equal(first, name)
	s.Equal("OLD", items[0].Type)

	_, _, err = s.service.Restore(s.ctx, s.player, "missing")
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ServiceSuite) TestBackupRejectsLongBaseUpFront() {
	base := strings.Repeat("k", 30)

	_, err := s.service.Backup(s.ctx, s.player, base, s.kit())
	s.Require().ErrorIs(err, model.ErrInvalidName)
	s.Contains(err.Error(), "too long to back up")
	s.NotContains(err.Error(), "backup_")

	names, err := s.service.List(s.ctx, s.player)
	s.Require().NoError(err)
	s.Empty(names)
}

func (s *ServiceSuite) TestInfo() {
	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", s.kit()))

	info, err := s.service.Info(s.ctx, s.player, "pvp")
	s.Require().NoError(err)
	s.Equal("pvp", info.Name)
	s.Equal(3, info.Slots)
	s.Equal(2, info.Occupied)
	s.Positive(info.Size)
	s.False(info.CreatedAt.IsZero())

	_, err = s.service.Info(s.ctx, s.player, "missing")
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ServiceSuite) TestAutoSave() {
	s.service.now = func() time.Time { return time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC) }

	name, err := s.service.AutoSave(s.ctx, s.player, s.kit())
	s.Require().NoError(err)
	s.Equal("auto_2024-05-01_22-30-00", name)

	s.service.cfg.AutoSaveOnQuit = false
	name, err = s.service.AutoSave(s.ctx, s.player, s.kit())
	s.Require().NoError(err)
	s.Empty(name)
}

func (s *ServiceSuite) TestDirectTierDropsSharedEntry() {
	pub := cache.NewPublisher(model.KindInventory, "minecraft", s.shared, logger.NewNop())
	direct := NewService(model.KindInventory, NewDirectTier(model.KindInventory, s.store, pub), s.store, Config{}, nil)

	s.Require().NoError(s.service.Save(s.ctx, s.player, "pvp", s.kit()))
	key := model.KindInventory.CacheKey(model.Key{Player: s.player, Name: "pvp"})
	s.True(s.mini.Exists(key))

	sub := s.subscribe()
	s.Require().NoError(direct.Update(s.ctx, s.player, "pvp", Collection{nil}))
	s.Equal(s.player.String()+":update:pvp", s.receive(sub))
	s.False(s.mini.Exists(key))

	data, err := direct.Data(s.ctx, s.player, "pvp")
	s.Require().NoError(err)
	s.Equal("[null]", data)
}
