// Package cli implements playerctl, the admin CLI over the RPC facade
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"playersync/internal/rpc"
)

// app carries the state shared by every subcommand
type app struct {
	cfg    *Config
	client *rpc.Client

	// dial is replaced in tests
	dial func(cfg *Config) (*rpc.Client, error)
}

// Option customizes the root command
type Option func(*app)

// WithClient uses c instead of dialing Config.Target
func WithClient(c *rpc.Client) Option {
	return func(a *app) {
		a.dial = func(*Config) (*rpc.Client, error) { return c, nil }
	}
}

// NewRootCmd creates the root command
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{
		cfg: DefaultConfig(),
		dial: func(cfg *Config) (*rpc.Client, error) {
			return rpc.Dial(cfg.Target, cfg.Secret)
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "playerctl",
		Short: "Admin CLI for playersync",
		Long: `playerctl reads and writes authoritative player state through the
playersync RPC facade.

It manages balances, inventory and ender chest snapshots, checks node
health and tails the balance audit trail.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.cfg.Target, "addr", a.cfg.Target, "RPC address (env: PLAYERSYNC_RPC_ADDR)")
	rootCmd.PersistentFlags().StringVar(&a.cfg.Secret, "secret", a.cfg.Secret, "Shared secret key (env: PLAYERSYNC_SECRET_KEY)")
	rootCmd.PersistentFlags().StringVarP(&a.cfg.Output, "output", "o", a.cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&a.cfg.Timeout, "timeout", a.cfg.Timeout, "Per-call timeout")

	// Add subcommands
	rootCmd.AddCommand(a.newBalanceCmd())
	rootCmd.AddCommand(a.newSnapshotCmd("inventory", "Inventory snapshot commands", kindInventory))
	rootCmd.AddCommand(a.newSnapshotCmd("enderchest", "Ender chest snapshot commands", kindEnderChest))
	rootCmd.AddCommand(a.newHealthCmd())
	rootCmd.AddCommand(a.newAuditCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// connect dials on first use, so commands that need no RPC never touch the network
func (a *app) connect() (*rpc.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := a.dial(a.cfg)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// call runs fn with a connected client under the configured timeout
func (a *app) call(cmd *cobra.Command, fn func(ctx context.Context, c *rpc.Client) (any, error)) error {
	c, err := a.connect()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
	defer cancel()

	resp, err := fn(ctx, c)
	if err != nil {
		return err
	}
	if r, ok := resp.(interface{ Failure() string }); ok {
		if msg := r.Failure(); msg != "" {
			return errors.New(msg)
		}
	}
	NewOutput(a.cfg.Output, cmd.OutOrStdout()).Print(resp)
	return nil
}
