package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"playersync/internal/rpc"
	"playersync/pkg/model"
)

const (
	kindInventory  = model.KindInventory
	kindEnderChest = model.KindEnderChest
)

func (a *app) newSnapshotCmd(use, short string, kind model.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	snaps := func(c *rpc.Client) *rpc.SnapshotClient { return c.Snapshots(kind) }

	cmd.AddCommand(a.namedCmd("get <player> <name>", "Print a stored snapshot",
		func(ctx context.Context, c *rpc.Client, player, name string) (any, error) {
			return snaps(c).Get(ctx, player, name)
		}))
	cmd.AddCommand(a.namedCmd("delete <player> <name>", "Delete a snapshot",
		func(ctx context.Context, c *rpc.Client, player, name string) (any, error) {
			return snaps(c).Delete(ctx, player, name)
		}))
	cmd.AddCommand(a.namedCmd("restore <player> <name>", "Print the backup of a snapshot",
		func(ctx context.Context, c *rpc.Client, player, name string) (any, error) {
			return snaps(c).Restore(ctx, player, name)
		}))
	cmd.AddCommand(a.namedCmd("info <player> <name>", "Describe a snapshot",
		func(ctx context.Context, c *rpc.Client, player, name string) (any, error) {
			return snaps(c).Info(ctx, player, name)
		}))

	cmd.AddCommand(a.writeCmd("save <player> <name>", "Store a snapshot, replacing one of the same name",
		func(ctx context.Context, c *rpc.Client, player, name, data string) (any, error) {
			return snaps(c).Save(ctx, player, name, data)
		}))
	cmd.AddCommand(a.writeCmd("update <player> <name>", "Replace the contents of an existing snapshot",
		func(ctx context.Context, c *rpc.Client, player, name, data string) (any, error) {
			return snaps(c).Update(ctx, player, name, data)
		}))
	cmd.AddCommand(a.writeCmd("backup <player> <name>", "Store a timestamped backup",
		func(ctx context.Context, c *rpc.Client, player, name, data string) (any, error) {
			return snaps(c).Backup(ctx, player, name, data)
		}))

	cmd.AddCommand(a.playerCmd("list <player>", "List snapshot names in creation order",
		func(ctx context.Context, c *rpc.Client, player string) (any, error) {
			return snaps(c).List(ctx, player)
		}))
	cmd.AddCommand(a.playerCmd("delete-all <player>", "Delete every snapshot of a player",
		func(ctx context.Context, c *rpc.Client, player string) (any, error) {
			return snaps(c).DeleteAll(ctx, player)
		}))
	cmd.AddCommand(a.playerCmd("clear <player>", "Tell game servers to empty the live contents",
		func(ctx context.Context, c *rpc.Client, player string) (any, error) {
			return snaps(c).Clear(ctx, player)
		}))

	return cmd
}

func (a *app) playerCmd(use, short string, fn func(ctx context.Context, c *rpc.Client, player string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				return fn(ctx, c, args[0])
			})
		},
	}
}

func (a *app) namedCmd(use, short string, fn func(ctx context.Context, c *rpc.Client, player, name string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				return fn(ctx, c, args[0], args[1])
			})
		},
	}
}

func (a *app) writeCmd(use, short string, fn func(ctx context.Context, c *rpc.Client, player, name, data string) (any, error)) *cobra.Command {
	var data, file string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, data, file)
			if err != nil {
				return err
			}
			return a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				return fn(ctx, c, args[0], args[1], payload)
			})
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "Serialized slot array")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the slot array from a file (- for stdin)")
	return cmd
}

func readPayload(cmd *cobra.Command, data, file string) (string, error) {
	switch {
	case data != "" && file != "":
		return "", errors.New("use either --data or --file")
	case data != "":
		return data, nil
	case file == "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		return string(raw), err
	case file != "":
		raw, err := os.ReadFile(file)
		return string(raw), err
	}
	return "", errors.New("--data or --file is required")
}
