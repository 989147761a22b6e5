package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playersync/internal/rpc"
	"playersync/internal/snapshot"
	"playersync/pkg/audit"
	"playersync/pkg/config"
	"playersync/pkg/logger"
	"playersync/pkg/model"
	"playersync/pkg/replication"
	"playersync/pkg/sharedcache"
	"playersync/pkg/store/memory"
)

func testConfig(name string) config.AppConfig {
	return config.AppConfig{
		ServiceName: name,
		Store:       config.StoreConfig{Driver: config.DriverMemory},
		Cache:       config.CacheConfig{TTL: time.Hour, ChannelPrefix: "minecraft"},
		Economy:     config.EconomyConfig{StartingBalance: 1000},
		Snapshot:    config.SnapshotConfig{MaxNameLength: 50, AutoSaveOnQuit: true},
		RPC:         config.RPCConfig{AnnounceWrites: true},
		Worker:      config.WorkerConfig{Count: 2, QueueSize: 16},
	}
}

type cluster struct {
	mini  *miniredis.Miniredis
	store *memory.Store
}

func newCluster(t *testing.T) *cluster {
	return &cluster{mini: miniredis.RunT(t), store: memory.New()}
}

// start runs a node until the test ends and waits for its listeners
func (c *cluster) start(t *testing.T, name string, sink audit.Sink) *Runtime {
	t.Helper()
	shared := sharedcache.NewWithClient(redis.NewClient(&redis.Options{Addr: c.mini.Addr()}), time.Hour)
	r := New(testConfig(name), Deps{Store: c.store, Shared: shared, Audit: sink}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("node did not stop")
		}
	})

	select {
	case <-r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("listeners did not subscribe")
	}
	return r
}

func TestBalanceReplicatesBetweenNodes(t *testing.T) {
	c := newCluster(t)
	a := c.start(t, "lobby", nil)
	b := c.start(t, "survival", nil)
	ctx := context.Background()
	player := uuid.New()

	var mu sync.Mutex
	var seen []replication.Message
	b.OnChange(func(_ context.Context, msg replication.Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg)
	})

	got, err := b.Economy().Balance(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got)

	balance, err := a.Economy().Add(ctx, player, 250)
	require.NoError(t, err)
	assert.Equal(t, 1250.0, balance)

	require.Eventually(t, func() bool {
		v, ok := b.balances.Cached(model.Key{Player: player})
		return ok && v == 1250
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, model.OpAdd, seen[0].Operation)
	assert.Equal(t, "1250", seen[0].Payload)
	mu.Unlock()
}

func TestSnapshotWriteInvalidatesOtherNodes(t *testing.T) {
	c := newCluster(t)
	a := c.start(t, "lobby", nil)
	b := c.start(t, "survival", nil)
	ctx := context.Background()
	player := uuid.New()

	kit := snapshot.Collection{{Type: "BREAD", Amount: 3}}
	require.NoError(t, a.Inventory().Save(ctx, player, "kit", kit))

	_, err := b.Inventory().Load(ctx, player, "kit")
	require.NoError(t, err)
	_, cached := b.contents[model.KindInventory].Cached(model.Key{Player: player, Name: "kit"})
	require.True(t, cached)

	require.NoError(t, a.Inventory().Update(ctx, player, "kit", snapshot.Collection{{Type: "APPLE", Amount: 1}}))

	require.Eventually(t, func() bool {
		_, ok := b.contents[model.KindInventory].Cached(model.Key{Player: player, Name: "kit"})
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	items, err := b.Inventory().Load(ctx, player, "kit")
	require.NoError(t, err)
	assert.Equal(t, "APPLE", items[0].Type)
}

func TestRPCWritesReachCachingNodes(t *testing.T) {
	c := newCluster(t)
	admin := c.start(t, "admin", nil)
	game := c.start(t, "survival", nil)
	ctx := context.Background()
	player := uuid.New()

	_, err := game.Economy().Balance(ctx, player)
	require.NoError(t, err)

	resp, err := admin.RPCService().SetBalance(ctx, &rpc.AmountRequest{PlayerUUID: player.String(), Amount: 42})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.ErrorMessage)

	require.Eventually(t, func() bool {
		v, ok := game.balances.Cached(model.Key{Player: player})
		return ok && v == 42
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClearCaches(t *testing.T) {
	c := newCluster(t)
	r := c.start(t, "lobby", nil)
	ctx := context.Background()
	p1, p2 := uuid.New(), uuid.New()

	for _, p := range []uuid.UUID{p1, p2} {
		_, err := r.Economy().Balance(ctx, p)
		require.NoError(t, err)
	}
	require.Equal(t, 2, r.balances.Size())

	r.ClearCaches(p1)
	_, ok := r.balances.Cached(model.Key{Player: p1})
	assert.False(t, ok)
	_, ok = r.balances.Cached(model.Key{Player: p2})
	assert.True(t, ok)

	r.ClearCaches()
	assert.Zero(t, r.balances.Size())
}

func TestAuditCarriesSource(t *testing.T) {
	c := newCluster(t)
	sink := &audit.Recorder{}
	r := c.start(t, "lobby", sink)

	require.NoError(t, r.Economy().Set(context.Background(), uuid.New(), 10))
	_, err := r.RPCService().AddBalance(context.Background(), &rpc.AmountRequest{PlayerUUID: uuid.NewString(), Amount: 5})
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "lobby", events[0].Source)
	assert.Equal(t, "lobby/rpc", events[1].Source)
}

func TestPing(t *testing.T) {
	c := newCluster(t)
	shared := sharedcache.NewWithClient(redis.NewClient(&redis.Options{Addr: c.mini.Addr()}), time.Hour)
	r := New(testConfig("lobby"), Deps{Store: c.store, Shared: shared}, logger.NewNop())

	assert.NoError(t, r.Ping(context.Background()))

	health, err := r.RPCService().HealthCheck(context.Background(), &rpc.HealthRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", health.Status)

	c.mini.Close()
	assert.Error(t, r.Ping(context.Background()))

	assert.NoError(t, r.Close(context.Background()))
	// Close is idempotent
	assert.NoError(t, r.Close(context.Background()))
}
