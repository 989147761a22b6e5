// Package rpc exposes the economy and snapshot operations over gRPC for
// out-of-process callers. Messages are JSON encoded.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playersync/internal/economy"
	"playersync/internal/snapshot"
	"playersync/pkg/logger"
	"playersync/pkg/model"
)

// HealthFunc reports whether the backing stores are reachable
type HealthFunc func(ctx context.Context) error

// Service implements the PlayerSync handlers
type Service struct {
	economy   *economy.Engine
	snapshots map[model.Kind]*snapshot.Service
	health    HealthFunc
	logger    *logger.Logger
}

// NewService wires the handlers. health may be nil.
func NewService(e *economy.Engine, snapshots []*snapshot.Service, health HealthFunc, l *logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Service{
		economy:   e,
		snapshots: make(map[model.Kind]*snapshot.Service, len(snapshots)),
		health:    health,
		logger:    l.Named("rpc"),
	}
	for _, svc := range snapshots {
		s.snapshots[svc.Kind()] = svc
	}
	return s
}

// Economy

func (s *Service) GetBalance(ctx context.Context, in *PlayerRequest) (*BalanceResponse, error) {
	out := &BalanceResponse{}
	player, err := model.ParsePlayerID(in.PlayerUUID)
	if err == nil {
		out.Balance, err = s.economy.Balance(ctx, player)
	}
	return out, s.settle(&out.Result, "GetBalance", err)
}

func (s *Service) SetBalance(ctx context.Context, in *AmountRequest) (*BalanceResponse, error) {
	out := &BalanceResponse{}
	player, err := model.ParsePlayerID(in.PlayerUUID)
	if err == nil {
		if err = s.economy.Set(ctx, player, in.Amount); err == nil {
			out.Balance = in.Amount
		}
	}
	return out, s.settle(&out.Result, "SetBalance", err)
}

func (s *Service) AddBalance(ctx context.Context, in *AmountRequest) (*BalanceResponse, error) {
	out := &BalanceResponse{}
	player, err := model.ParsePlayerID(in.PlayerUUID)
	if err == nil {
		out.Balance, err = s.economy.Add(ctx, player, in.Amount)
	}
	return out, s.settle(&out.Result, "AddBalance", err)
}

func (s *Service) RemoveBalance(ctx context.Context, in *AmountRequest) (*BalanceResponse, error) {
	out := &BalanceResponse{}
	player, err := model.ParsePlayerID(in.PlayerUUID)
	if err == nil {
		out.Balance, err = s.economy.Remove(ctx, player, in.Amount)
	}
	return out, s.settle(&out.Result, "RemoveBalance", err)
}

func (s *Service) TransferBalance(ctx context.Context, in *TransferRequest) (*StatusResponse, error) {
	out := &StatusResponse{}
	from, err := model.ParsePlayerID(in.FromPlayerUUID)
	if err == nil {
		var to uuid.UUID
		if to, err = model.ParsePlayerID(in.ToPlayerUUID); err == nil {
			err = s.economy.Transfer(ctx, from, to, in.Amount)
		}
	}
	return out, s.settle(&out.Result, "TransferBalance", err)
}

// Snapshots

func (s *Service) snapshotGet(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*SnapshotResponse, error) {
	out := &SnapshotResponse{Name: in.Name}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) (err error) {
		out.Data, err = svc.Data(ctx, p, in.Name)
		return err
	})
	return out, s.settle(&out.Result, method(kind, "Get"), err)
}

func (s *Service) snapshotSave(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*StatusResponse, error) {
	out := &StatusResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		items, err := snapshot.Decode(in.Data)
		if err != nil {
			return err
		}
		return svc.Save(ctx, p, in.Name, items)
	})
	return out, s.settle(&out.Result, method(kind, "Save"), err)
}

func (s *Service) snapshotUpdate(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*StatusResponse, error) {
	out := &StatusResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		items, err := snapshot.Decode(in.Data)
		if err != nil {
			return err
		}
		return svc.Update(ctx, p, in.Name, items)
	})
	return out, s.settle(&out.Result, method(kind, "Update"), err)
}

func (s *Service) snapshotDelete(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*StatusResponse, error) {
	out := &StatusResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		return svc.Delete(ctx, p, in.Name)
	})
	return out, s.settle(&out.Result, method(kind, "Delete"), err)
}

func (s *Service) snapshotDeleteAll(ctx context.Context, kind model.Kind, in *PlayerRequest) (*DeleteAllResponse, error) {
	out := &DeleteAllResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) (err error) {
		out.Deleted, err = svc.DeleteAll(ctx, p)
		return err
	})
	return out, s.settle(&out.Result, method(kind, "DeleteAll"), err)
}

func (s *Service) snapshotList(ctx context.Context, kind model.Kind, in *PlayerRequest) (*ListResponse, error) {
	out := &ListResponse{Names: []string{}}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		names, err := svc.List(ctx, p)
		if err == nil {
			out.Names = names
		}
		return err
	})
	return out, s.settle(&out.Result, method(kind, "List"), err)
}

func (s *Service) snapshotBackup(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*SnapshotResponse, error) {
	out := &SnapshotResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		items, err := snapshot.Decode(in.Data)
		if err != nil {
			return err
		}
		out.Name, err = svc.Backup(ctx, p, in.Name, items)
		return err
	})
	return out, s.settle(&out.Result, method(kind, "Backup"), err)
}

func (s *Service) snapshotRestore(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*SnapshotResponse, error) {
	out := &SnapshotResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		items, name, err := svc.Restore(ctx, p, in.Name)
		if err != nil {
			return err
		}
		data, err := snapshot.Encode(items)
		if err != nil {
			return err
		}
		out.Name, out.Data = name, data
		return nil
	})
	return out, s.settle(&out.Result, method(kind, "Restore"), err)
}

func (s *Service) snapshotInfo(ctx context.Context, kind model.Kind, in *SnapshotRequest) (*InfoResponse, error) {
	out := &InfoResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		info, err := svc.Info(ctx, p, in.Name)
		if err == nil {
			out.Info = &info
		}
		return err
	})
	return out, s.settle(&out.Result, method(kind, "Info"), err)
}

func (s *Service) snapshotClear(ctx context.Context, kind model.Kind, in *PlayerRequest) (*StatusResponse, error) {
	out := &StatusResponse{}
	err := s.withSnapshot(kind, in.PlayerUUID, func(svc *snapshot.Service, p uuid.UUID) error {
		svc.Clear(ctx, p)
		return nil
	})
	return out, s.settle(&out.Result, method(kind, "Clear"), err)
}

// HealthCheck answers "OK" or "ERROR: <reason>"
func (s *Service) HealthCheck(ctx context.Context, _ *HealthRequest) (*HealthResponse, error) {
	if s.health != nil {
		if err := s.health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return &HealthResponse{Status: "ERROR: " + err.Error()}, nil
		}
	}
	return &HealthResponse{Status: "OK"}, nil
}

func (s *Service) withSnapshot(kind model.Kind, rawPlayer string, fn func(*snapshot.Service, uuid.UUID) error) error {
	svc, ok := s.snapshots[kind]
	if !ok {
		return fmt.Errorf("%s snapshots are not served", kind.Label())
	}
	player, err := model.ParsePlayerID(rawPlayer)
	if err != nil {
		return err
	}
	return fn(svc, player)
}

// settle folds err into the response envelope. Domain failures are reported in
// the body, never as transport errors.
func (s *Service) settle(r *Result, name string, err error) error {
	if err == nil {
		r.Success = true
		return nil
	}
	r.fail(err)
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrDecode):
		s.logger.Debug("request rejected", zap.String("method", name), zap.Error(err))
	default:
		s.logger.Error("request failed", err, zap.String("method", name))
	}
	return nil
}
