package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"playersync/internal/rpc"
)

func (a *app) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check node health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status string
			err := a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				resp, err := c.HealthCheck(ctx)
				if err == nil {
					status = resp.Status
				}
				return resp, err
			})
			if err != nil {
				return err
			}
			if status != "OK" {
				return errors.New(strings.TrimPrefix(status, "ERROR: "))
			}
			return nil
		},
	}
}
