package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/utils"
)

func newAuditCmd(opts *globalOptions) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the gate audit trail",
	}
	auditCmd.AddCommand(newAuditRecentCmd(opts))
	return auditCmd
}

func newAuditRecentCmd(opts *globalOptions) *cobra.Command {
	var (
		limit     int
		login     string
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateVar(limit, "limit", "min=1,max=1000"); err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var events []*models.AuditEvent
			switch {
			case requestID != "":
				events, err = s.repos.AuditLog.GetByRequestID(cmd.Context(), requestID, limit)
			case login != "":
				events, err = s.repos.AuditLog.GetByLogin(cmd.Context(), login, limit)
			default:
				events, err = s.repos.AuditLog.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tSTATUS\tLOGIN\tREQUEST\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.OccurredAt.Format(time.RFC3339), e.SubType, e.Status, e.Login, e.RequestID, e.Message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events")
	cmd.Flags().StringVar(&login, "login", "", "Only events of this login")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Only events of this request")
	return cmd
}
