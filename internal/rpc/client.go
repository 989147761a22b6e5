package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"playersync/pkg/model"
)

// Client calls a remote PlayerSync service
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
	secret string
}

// Dial connects to target without transport security
func Dial(target, secret string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c := NewClient(conn, secret)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection
func NewClient(conn grpc.ClientConnInterface, secret string) *Client {
	return &Client{conn: conn, secret: secret}
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func invoke[Resp any](ctx context.Context, c *Client, name string, in any) (*Resp, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, SecretHeader, c.secret)
	out := new(Resp)
	if err := c.conn.Invoke(ctx, FullMethod(name), in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context, player string) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "GetBalance", &PlayerRequest{PlayerUUID: player})
}

func (c *Client) SetBalance(ctx context.Context, player string, amount float64) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "SetBalance", &AmountRequest{PlayerUUID: player, Amount: amount})
}

func (c *Client) AddBalance(ctx context.Context, player string, amount float64) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "AddBalance", &AmountRequest{PlayerUUID: player, Amount: amount})
}

func (c *Client) RemoveBalance(ctx context.Context, player string, amount float64) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "RemoveBalance", &AmountRequest{PlayerUUID: player, Amount: amount})
}

func (c *Client) TransferBalance(ctx context.Context, from, to string, amount float64) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "TransferBalance", &TransferRequest{FromPlayerUUID: from, ToPlayerUUID: to, Amount: amount})
}

func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	return invoke[HealthResponse](ctx, c, "HealthCheck", &HealthRequest{})
}

// Snapshots returns a client for the inventory or ender chest methods
func (c *Client) Snapshots(kind model.Kind) *SnapshotClient {
	return &SnapshotClient{c: c, kind: kind}
}

// SnapshotClient calls the snapshot methods of one kind
type SnapshotClient struct {
	c    *Client
	kind model.Kind
}

func (s *SnapshotClient) req(player, name, data string) *SnapshotRequest {
	return &SnapshotRequest{PlayerUUID: player, Name: name, Data: data}
}

func (s *SnapshotClient) Get(ctx context.Context, player, name string) (*SnapshotResponse, error) {
	return invoke[SnapshotResponse](ctx, s.c, method(s.kind, "Get"), s.req(player, name, ""))
}

func (s *SnapshotClient) Save(ctx context.Context, player, name, data string) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, s.c, method(s.kind, "Save"), s.req(player, name, data))
}

func (s *SnapshotClient) Update(ctx context.Context, player, name, data string) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, s.c, method(s.kind, "Update"), s.req(player, name, data))
}

func (s *SnapshotClient) Delete(ctx context.Context, player, name string) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, s.c, method(s.kind, "Delete"), s.req(player, name, ""))
}

func (s *SnapshotClient) DeleteAll(ctx context.Context, player string) (*DeleteAllResponse, error) {
	return invoke[DeleteAllResponse](ctx, s.c, method(s.kind, "DeleteAll"), &PlayerRequest{PlayerUUID: player})
}

func (s *SnapshotClient) List(ctx context.Context, player string) (*ListResponse, error) {
	return invoke[ListResponse](ctx, s.c, method(s.kind, "List"), &PlayerRequest{PlayerUUID: player})
}

func (s *SnapshotClient) Backup(ctx context.Context, player, name, data string) (*SnapshotResponse, error) {
	return invoke[SnapshotResponse](ctx, s.c, method(s.kind, "Backup"), s.req(player, name, data))
}

func (s *SnapshotClient) Restore(ctx context.Context, player, name string) (*SnapshotResponse, error) {
	return invoke[SnapshotResponse](ctx, s.c, method(s.kind, "Restore"), s.req(player, name, ""))
}

func (s *SnapshotClient) Info(ctx context.Context, player, name string) (*InfoResponse, error) {
	return invoke[InfoResponse](ctx, s.c, method(s.kind, "Info"), s.req(player, name, ""))
}

func (s *SnapshotClient) Clear(ctx context.Context, player string) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, s.c, method(s.kind, "Clear"), &PlayerRequest{PlayerUUID: player})
}
