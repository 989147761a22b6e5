package cli

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"playersync/pkg/audit"
)

func (a *app) newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Balance audit trail commands",
	}

	var group string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Stream balance audit events",
		Long: `Read balance mutation events from the audit topic as they are produced.

Without --group only new events are shown. Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(a.cfg.AuditBrokers) == 0 {
				return errors.New("no audit brokers configured (env: PLAYERSYNC_AUDIT_BROKERS)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reader := audit.NewReader(audit.Config{
				Brokers: a.cfg.AuditBrokers,
				Topic:   a.cfg.AuditTopic,
				GroupID: group,
			})
			defer reader.Close()

			out := NewOutput(a.cfg.Output, cmd.OutOrStdout())
			events, errs := reader.Events(ctx)
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return nil
					}
					out.Print(e)
				case err, ok := <-errs:
					if ok && err != nil && ctx.Err() == nil {
						return err
					}
					errs = nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	tail.Flags().StringVar(&group, "group", "", "Consumer group to commit offsets under")
	tail.Flags().StringSliceVar(&a.cfg.AuditBrokers, "brokers", a.cfg.AuditBrokers, "Kafka brokers")
	tail.Flags().StringVar(&a.cfg.AuditTopic, "topic", a.cfg.AuditTopic, "Audit topic")

	cmd.AddCommand(tail)
	return cmd
}
