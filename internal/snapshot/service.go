// Package snapshot stores named inventory and ender chest snapshots
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"playersync/pkg/logger"
	"playersync/pkg/model"
	"playersync/pkg/replication"
	"playersync/pkg/store"
)

// Config holds snapshot rules
type Config struct {
	MaxNameLength  int
	AutoSaveOnQuit bool
}

// Info describes one stored snapshot
type Info struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Slots     int       `json:"slots"`
	Occupied  int       `json:"occupied"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service implements the snapshot operations of one kind
type Service struct {
	kind   model.Kind
	tier   Tier
	store  store.SnapshotStore
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a service for kind. store serves listings and metadata.
func NewService(kind model.Kind, tier Tier, s store.SnapshotStore, cfg Config, l *logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = DefaultMaxNameLength
	}
	return &Service{
		kind:   kind,
		tier:   tier,
		store:  s,
		cfg:    cfg,
		logger: l.Named(string(kind)),
		now:    time.Now,
	}
}

// Kind returns the snapshot kind served
func (s *Service) Kind() model.Kind {
	return s.kind
}

// Save stores items under name, replacing an existing snapshot of that name
func (s *Service) Save(ctx context.Context, player uuid.UUID, name string, items Collection) error {
	if err := ValidateName(name, s.cfg.MaxNameLength); err != nil {
		return err
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}

	err = s.tier.Commit(ctx, player, name, model.OpSave, func(ctx context.Context) (string, error) {
		_, err := s.store.SaveSnapshot(ctx, s.kind, player, name, data)
		return data, err
	})
	if err != nil {
		return err
	}
	s.logger.Info("snapshot saved", zap.String("player", player.String()), zap.String("name", name))
	return nil
}

// Data returns the stored blob without decoding it
func (s *Service) Data(ctx context.Context, player uuid.UUID, name string) (string, error) {
	if err := ValidateName(name, s.cfg.MaxNameLength); err != nil {
		return "", err
	}
	return s.tier.Read(ctx, player, name)
}

// Load returns the decoded snapshot and announces that it was applied
func (s *Service) Load(ctx context.Context, player uuid.UUID, name string) (Collection, error) {
	data, err := s.Data(ctx, player, name)
	if err != nil {
		return nil, err
	}
	items, err := Decode(data)
	if err != nil {
		return nil, err
	}

	s.tier.Announce(ctx, player, model.OpLoad, name)
	s.logger.Info("snapshot loaded", zap.String("player", player.String()), zap.String("name", name))
	return items, nil
}

// Update replaces an existing snapshot. A missing snapshot is model.ErrNotFound.
func (s *Service) Update(ctx context.Context, player uuid.UUID, name string, items Collection) error {
	if err := ValidateName(name, s.cfg.MaxNameLength); err != nil {
		return err
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}

	err = s.tier.Commit(ctx, player, name, model.OpUpdate, func(ctx context.Context) (string, error) {
		matched, err := s.store.UpdateSnapshot(ctx, s.kind, player, name, data)
		if err != nil {
			return "", err
		}
		if !matched {
			return "", fmt.Errorf("%s %q: %w", s.kind.Label(), name, model.ErrNotFound)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("snapshot updated", zap.String("player", player.String()), zap.String("name", name))
	return nil
}

// Delete removes one snapshot. A missing snapshot is model.ErrNotFound.
func (s *Service) Delete(ctx context.Context, player uuid.UUID, name string) error {
	if err := ValidateName(name, s.cfg.MaxNameLength); err != nil {
		return err
	}
	if err := s.tier.Forget(ctx, player, name); err != nil {
		return err
	}
	s.logger.Info("snapshot deleted", zap.String("player", player.String()), zap.String("name", name))
	return nil
}

// DeleteAll deletes every snapshot of the player one by one and returns how
// many were removed. Individual failures are collected into the error.
func (s *Service) DeleteAll(ctx context.Context, player uuid.UUID) (int, error) {
	names, err := s.List(ctx, player)
	if err != nil {
		return 0, err
	}

	var errs error
	deleted := 0
	for _, name := range names {
		if err := s.tier.Forget(ctx, player, name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		deleted++
	}
	if errs != nil {
		s.logger.Warn("some snapshots could not be deleted",
			zap.String("player", player.String()),
			zap.Int("deleted", deleted),
			zap.Int("total", len(names)),
			zap.Error(errs),
		)
	}
	return deleted, errs
}

// List returns the player's snapshot names in creation order
func (s *Service) List(ctx context.Context, player uuid.UUID) ([]string, error) {
	names, err := s.store.ListSnapshots(ctx, s.kind, player)
	if err != nil {
		return nil, model.StoreError("list "+string(s.kind), err)
	}
	return names, nil
}

// Clear announces that the player's live contents were emptied. No stored
// snapshot changes.
func (s *Service) Clear(ctx context.Context, player uuid.UUID) {
	s.tier.Announce(ctx, player, model.OpClear, replication.ClearAll)
	s.logger.Info("contents cleared", zap.String("player", player.String()))
}

// Backup saves items as backup_<name>_<timestamp> and returns the full name
func (s *Service) Backup(ctx context.Context, player uuid.UUID, name string, items Collection) (string, error) {
	if err := ValidateBackupBase(name, s.cfg.MaxNameLength); err != nil {
		return "", err
	}
	full := BackupName(name, s.now())
	if err := s.Save(ctx, player, full, items); err != nil {
		return "", err
	}
	return full, nil
}

// Restore loads the first backup of name in store order and returns it with its full name
func (s *Service) Restore(ctx context.Context, player uuid.UUID, name string) (Collection, string, error) {
	if err := ValidateName(name, s.cfg.MaxNameLength); err != nil {
		return nil, "", err
	}
	names, err := s.List(ctx, player)
	if err != nil {
		return nil, "", err
	}

	prefix := BackupPrefix(name)
	for _, candidate := range names {
		if strings.HasPrefix(candidate, prefix) {
			items, err := s.Load(ctx, player, candidate)
			if err != nil {
				return nil, "", err
			}
			return items, candidate, nil
		}
	}
	return nil, "", fmt.Errorf("backup %q: %w", name, model.ErrNotFound)
}

// Info describes a stored snapshot
func (s *Service) Info(ctx context.Context, player uuid.UUID, name string) (Info, error) {
	if err := ValidateName(name, s.cfg.MaxNameLength); err != nil {
		return Info{}, err
	}
	rec, err := s.store.GetSnapshot(ctx, s.kind, player, name)
	if err != nil {
		return Info{}, model.StoreError("info "+string(s.kind), err)
	}

	info := Info{
		Name:      rec.Name,
		Size:      len(rec.Data),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if items, err := Decode(rec.Data); err == nil {
		info.Slots = len(items)
		info.Occupied = items.Occupied()
	}
	return info, nil
}

// AutoSave stores items as auto_<timestamp> when auto-save on quit is enabled.
// It returns the name used, or "" when disabled.
func (s *Service) AutoSave(ctx context.Context, player uuid.UUID, items Collection) (string, error) {
	if !s.cfg.AutoSaveOnQuit {
		return "", nil
	}
	name := AutoSaveName(s.now())
	if err := s.Save(ctx, player, name, items); err != nil {
		return "", err
	}
	return name, nil
}
