package rpc

import (
	"context"

	"google.golang.org/grpc"

	"playersync/pkg/model"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "playersync.v1.PlayerSync"

// handler marks implementations of the service for grpc.RegisterService
type handler interface {
	HealthCheck(ctx context.Context, in *HealthRequest) (*HealthResponse, error)
}

// FullMethod returns "/playersync.v1.PlayerSync/<name>"
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// method names a snapshot method, e.g. "EnderChestBackup"
func method(kind model.Kind, op string) string {
	switch kind {
	case model.KindInventory:
		return "Inventory" + op
	case model.KindEnderChest:
		return "EnderChest" + op
	}
	return string(kind) + op
}

// unary adapts a typed handler to grpc.MethodDesc
func unary[Req, Resp any](name string, call func(s *Service, ctx context.Context, in *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Service)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// Desc describes every method of the service
func Desc() *grpc.ServiceDesc {
	methods := []grpc.MethodDesc{
		unary("GetBalance", (*Service).GetBalance),
		unary("SetBalance", (*Service).SetBalance),
		unary("AddBalance", (*Service).AddBalance),
		unary("RemoveBalance", (*Service).RemoveBalance),
		unary("TransferBalance", (*Service).TransferBalance),
		unary("HealthCheck", (*Service).HealthCheck),
	}
	for _, kind := range model.SnapshotKinds {
		methods = append(methods, snapshotMethods(kind)...)
	}
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*handler)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "playersync.json",
	}
}

func snapshotMethods(kind model.Kind) []grpc.MethodDesc {
	return []grpc.MethodDesc{
		unary(method(kind, "Get"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*SnapshotResponse, error) {
			return s.snapshotGet(ctx, kind, in)
		}),
		unary(method(kind, "Save"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*StatusResponse, error) {
			return s.snapshotSave(ctx, kind, in)
		}),
		unary(method(kind, "Update"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*StatusResponse, error) {
			return s.snapshotUpdate(ctx, kind, in)
		}),
		unary(method(kind, "Delete"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*StatusResponse, error) {
			return s.snapshotDelete(ctx, kind, in)
		}),
		unary(method(kind, "DeleteAll"), func(s *Service, ctx context.Context, in *PlayerRequest) (*DeleteAllResponse, error) {
			return s.snapshotDeleteAll(ctx, kind, in)
		}),
		unary(method(kind, "List"), func(s *Service, ctx context.Context, in *PlayerRequest) (*ListResponse, error) {
			return s.snapshotList(ctx, kind, in)
		}),
		unary(method(kind, "Backup"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*SnapshotResponse, error) {
			return s.snapshotBackup(ctx, kind, in)
		}),
		unary(method(kind, "Restore"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*SnapshotResponse, error) {
			return s.snapshotRestore(ctx, kind, in)
		}),
		unary(method(kind, "Info"), func(s *Service, ctx context.Context, in *SnapshotRequest) (*InfoResponse, error) {
			return s.snapshotInfo(ctx, kind, in)
		}),
		unary(method(kind, "Clear"), func(s *Service, ctx context.Context, in *PlayerRequest) (*StatusResponse, error) {
			return s.snapshotClear(ctx, kind, in)
		}),
	}
}
