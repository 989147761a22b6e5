package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"playersync/internal/cache"
	"playersync/internal/economy"
	"playersync/internal/snapshot"
	"playersync/pkg/logger"
	"playersync/pkg/model"
	"playersync/pkg/sharedcache"
	"playersync/pkg/store/memory"
)

const testSecret = "s3cret"

type RPCSuite struct {
	suite.Suite
	mini     *miniredis.Miniredis
	shared   *sharedcache.Cache
	store    *memory.Store
	healthy  error
	listener *bufconn.Listener
	conn     *grpc.ClientConn
	client   *Client
	cancel   context.CancelFunc
	done     chan error
	ctx      context.Context
}

func TestRPCSuite(t *testing.T) {
	suite.Run(t, new(RPCSuite))
}

func (s *RPCSuite) SetupTest() {
	s.ctx = context.Background()
	s.mini = miniredis.RunT(s.T())
	s.shared = sharedcache.NewWithClient(redis.NewClient(&redis.Options{Addr: s.mini.Addr()}), time.Hour)
	s.store = memory.New()
	s.healthy = nil

	l := logger.NewNop()
	cfg := economy.DefaultConfig()
	engine := economy.NewEngine(
		economy.NewDirectTier(s.store, cfg.StartingBalance, cache.NewPublisher(model.KindEconomy, "minecraft", s.shared, l)),
		s.store, cfg,
	)
	var snapshots []*snapshot.Service
	for _, kind := range model.SnapshotKinds {
		tier := snapshot.NewDirectTier(kind, s.store, cache.NewPublisher(kind, "minecraft", s.shared, l))
		snapshots = append(snapshots, snapshot.NewService(kind, tier, s.store, snapshot.Config{MaxNameLength: 50}, l))
	}
	svc := NewService(engine, snapshots, func(context.Context) error { return s.healthy }, l)

	s.listener = bufconn.Listen(1 << 20)
	srv := NewServer(s.listener, testSecret, svc, l)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- srv.Serve(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.conn = conn
	s.client = NewClient(conn, testSecret)
}

func (s *RPCSuite) TearDownTest() {
	_ = s.conn.Close()
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not stop")
	}
	_ = s.shared.Close()
}

func (s *RPCSuite) TestBalanceOperations() {
	player := uuid.NewString()

	got, err := s.client.GetBalance(s.ctx, player)
	s.Require().NoError(err)
	s.True(got.Success)
	s.Equal(1000.0, got.Balance)

	got, err = s.client.AddBalance(s.ctx, player, 50)
	s.Require().NoError(err)
	s.True(got.Success)
	s.Equal(1050.0, got.Balance)

	got, err = s.client.RemoveBalance(s.ctx, player, 2000)
	s.Require().NoError(err)
	s.False(got.Success)
	s.Contains(got.ErrorMessage, "insufficient funds")

	got, err = s.client.SetBalance(s.ctx, player, 250)
	s.Require().NoError(err)
	s.True(got.Success)
	s.Equal(250.0, got.Balance)

	got, err = s.client.RemoveBalance(s.ctx, player, 50)
	s.Require().NoError(err)
	s.True(got.Success)
	s.Equal(200.0, got.Balance)
}

func (s *RPCSuite) TestTransfer() {
	from, to := uuid.NewString(), uuid.NewString()

	res, err := s.client.TransferBalance(s.ctx, from, to, 300)
	s.Require().NoError(err)
	s.True(res.Success)

	a, _ := s.client.GetBalance(s.ctx, from)
	b, _ := s.client.GetBalance(s.ctx, to)
	s.Equal(700.0, a.Balance)
	s.Equal(1300.0, b.Balance)

	res, err = s.client.TransferBalance(s.ctx, from, from, 1)
	s.Require().NoError(err)
	s.False(res.Success)
}

func (s *RPCSuite) TestInvalidPlayerIsReportedInBody() {
	got, err := s.client.GetBalance(s.ctx, "not-a-uuid")
	s.Require().NoError(err)
	s.False(got.Success)
	s.Contains(got.ErrorMessage, "invalid player id")
}

func (s *RPCSuite) TestWritesAreAnnounced() {
	player := uuid.New()
	sub, err := s.shared.Subscribe(s.ctx, "minecraft:economy")
	s.Require().NoError(err)
	defer sub.Close()

	_, err = s.client.SetBalance(s.ctx, player.String(), 250)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	raw, err := sub.Receive(ctx)
	s.Require().NoError(err)
	s.Equal(player.String()+":set:250", raw)
}

func (s *RPCSuite) TestSnapshotLifecycle() {
	player := uuid.NewString()
	inv := s.client.Snapshots(model.KindInventory)
	data := `[{"type":"DIAMOND","amount":3},null]`

	saved, err := inv.Save(s.ctx, player, "kit", data)
	s.Require().NoError(err)
	s.True(saved.Success, saved.ErrorMessage)

	got, err := inv.Get(s.ctx, player, "kit")
	s.Require().NoError(err)
	s.True(got.Success)
	items, err := snapshot.Decode(got.Data)
	s.Require().NoError(err)
	s.Equal(1, items.Occupied())

	info, err := inv.Info(s.ctx, player, "kit")
	s.Require().NoError(err)
	s.Require().True(info.Success)
	s.Equal(2, info.Info.Slots)
	s.Equal(1, info.Info.Occupied)

	backup, err := inv.Backup(s.ctx, player, "kit", data)
	s.Require().NoError(err)
	s.True(backup.Success)
	s.Contains(backup.Name, "backup_kit_")

	restored, err := inv.Restore(s.ctx, player, "kit")
	s.Require().NoError(err)
	s.True(restored.Success)
	s.Equal(backup.Name, restored.Name)

	list, err := inv.List(s.ctx, player)
	s.Require().NoError(err)
	s.Equal([]string{"kit", backup.Name}, list.Names)

	// Ender chests are a separate namespace
	chest, err := s.client.Snapshots(model.KindEnderChest).Get(s.ctx, player, "kit")
	s.Require().NoError(err)
	s.False(chest.Success)

	deleted, err := inv.Delete(s.ctx, player, "kit")
	s.Require().NoError(err)
	s.True(deleted.Success)

	all, err := inv.DeleteAll(s.ctx, player)
	s.Require().NoError(err)
	s.True(all.Success)
	s.Equal(1, all.Deleted)

	list, err = inv.List(s.ctx, player)
	s.Require().NoError(err)
	s.Empty(list.Names)
}

func (s *RPCSuite) TestSnapshotFailures() {
	player := uuid.NewString()
	inv := s.client.Snapshots(model.KindInventory)

	upd, err := inv.Update(s.ctx, player, "missing", "[]")
	s.Require().NoError(err)
	s.False(upd.Success)
	s.Contains(upd.ErrorMessage, "not found")

	bad, err := inv.Save(s.ctx, player, "kit", "{not json")
	s.Require().NoError(err)
	s.False(bad.Success)

	name, err := inv.Save(s.ctx, player, "has space", "[]")
	s.Require().NoError(err)
	s.False(name.Success)

	restore, err := inv.Restore(s.ctx, player, "never")
	s.Require().NoError(err)
	s.False(restore.Success)
}

func (s *RPCSuite) TestClearAnnounces() {
	player := uuid.New()
	sub, err := s.shared.Subscribe(s.ctx, "minecraft:ender_chest")
	s.Require().NoError(err)
	defer sub.Close()

	res, err := s.client.Snapshots(model.KindEnderChest).Clear(s.ctx, player.String())
	s.Require().NoError(err)
	s.True(res.Success)

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	raw, err := sub.Receive(ctx)
	s.Require().NoError(err)
	s.Equal(player.String()+":clear:all", raw)
}

func (s *RPCSuite) TestHealthCheck() {
	res, err := s.client.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.Equal("OK", res.Status)

	s.healthy = errors.New("mongo down")
	res, err = s.client.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.Equal("ERROR: mongo down", res.Status)
}

func (s *RPCSuite) TestRejectsWrongSecret() {
	_, err := NewClient(s.conn, "wrong").GetBalance(s.ctx, uuid.NewString())
	s.Require().Error(err)
	s.Equal(codes.Unauthenticated, status.Code(err))

	_, err = NewClient(s.conn, "").HealthCheck(s.ctx)
	s.Equal(codes.Unauthenticated, status.Code(err))
}

func (s *RPCSuite) TestStandardHealthNeedsNoSecret() {
	resp, err := grpc_health_v1.NewHealthClient(s.conn).Check(s.ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	s.Require().NoError(err)
	s.Equal(grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestMethodNames(t *testing.T) {
	assert.Equal(t, "InventoryBackup", method(model.KindInventory, "Backup"))
	assert.Equal(t, "EnderChestClear", method(model.KindEnderChest, "Clear"))
	assert.Equal(t, "/playersync.v1.PlayerSync/GetBalance", FullMethod("GetBalance"))

	desc := Desc()
	names := map[string]bool{}
	for _, m := range desc.Methods {
		require.False(t, names[m.MethodName], "duplicate %s", m.MethodName)
		names[m.MethodName] = true
	}
	assert.Len(t, names, 6+2*10)
}

func TestAuthorize(t *testing.T) {
	assert.Error(t, authorize(context.Background(), testSecret))
	assert.ErrorIs(t, authorize(context.Background(), ""), errNoSecret)
}

func TestCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	raw, err := c.Marshal(&BalanceResponse{Result: Result{Success: true}, Balance: 12.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"balance":12.5}`, string(raw))

	var out BalanceResponse
	require.NoError(t, c.Unmarshal(raw, &out))
	assert.Equal(t, 12.5, out.Balance)
	assert.Equal(t, CodecName, c.Name())
}
