package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rbtsched/app"
	"github.com/kilianp07/rbtsched/core/scheduling"
	"github.com/kilianp07/rbtsched/pkg/export"
)

var optionsFlags struct {
	reason       string
	anyRBT       bool
	continuity   bool
	maxDays      int
	maxOptions   int
	times        []string
	preferredRBT []string
}

var optionsCmd = &cobra.Command{
	Use:   "options <session-id>",
	Short: "Rank rescheduling options for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := scheduling.ReschedulingRequest{SessionID: args[0], Reason: optionsFlags.reason}
		req.Preferences.AllowDifferentRBT = optionsFlags.anyRBT
		req.Preferences.PrioritizeContinuity = optionsFlags.continuity
		req.Preferences.MaxDaysFromOriginal = optionsFlags.maxDays
		req.Preferences.PreferredTimes = optionsFlags.times
		req.Preferences.PreferredRBTIDs = optionsFlags.preferredRBT
		req.Constraints.MaxOptions = optionsFlags.maxOptions
		return withApp(func(a *app.App) error {
			res, err := a.Service.FindReschedulingOptions(commandContext(cmd), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var impactFlags struct {
	newStart string
	newRBT   string
}

var impactCmd = &cobra.Command{
	Use:   "impact <session-id>",
	Short: "Estimate the disruption of moving a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := time.Parse(time.RFC3339, impactFlags.newStart)
		if err != nil {
			return fmt.Errorf("--new-start must be RFC3339: %w", err)
		}
		return withApp(func(a *app.App) error {
			rep, err := a.Service.AnalyzeReschedulingImpact(commandContext(cmd), args[0], start, impactFlags.newRBT)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		})
	},
}

var auditFlags struct {
	from   string
	to     string
	format string
}

var auditCmd = &cobra.Command{
	Use:   "audit <session|rbt|client> <id>",
	Short: "Print the audit trail of an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r *scheduling.TimeRange
		if auditFlags.from != "" || auditFlags.to != "" {
			r = &scheduling.TimeRange{}
			var err error
			if r.From, err = parseOptional(auditFlags.from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if r.To, err = parseOptional(auditFlags.to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}
		return withApp(func(a *app.App) error {
			trail, err := a.Service.GetAuditTrail(commandContext(cmd), args[0], args[1], r)
			if err != nil {
				return err
			}
			if auditFlags.format == "trail" {
				return printJSON(cmd.OutOrStdout(), trail)
			}
			return export.Write(cmd.OutOrStdout(), auditFlags.format, trail.Events)
		})
	},
}

func parseOptional(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func init() {
	f := optionsCmd.Flags()
	f.StringVar(&optionsFlags.reason, "reason", "", "why the session must move")
	f.BoolVar(&optionsFlags.anyRBT, "allow-different-rbt", false, "search the rest of the client's team")
	f.BoolVar(&optionsFlags.continuity, "prioritize-continuity", false, "weight continuity over convenience")
	f.IntVar(&optionsFlags.maxDays, "max-days", 0, "days searched around the original date")
	f.IntVar(&optionsFlags.maxOptions, "max-options", 0, "number of options returned")
	f.StringSliceVar(&optionsFlags.times, "preferred-time", nil, "preferred start times, HH:MM")
	f.StringSliceVar(&optionsFlags.preferredRBT, "preferred-rbt", nil, "preferred RBT ids")

	impactCmd.Flags().StringVar(&impactFlags.newStart, "new-start", "", "proposed start, RFC3339")
	impactCmd.Flags().StringVar(&impactFlags.newRBT, "new-rbt", "", "proposed RBT id")
	_ = impactCmd.MarkFlagRequired("new-start")

	auditCmd.Flags().StringVar(&auditFlags.from, "from", "", "lower bound, RFC3339")
	auditCmd.Flags().StringVar(&auditFlags.to, "to", "", "upper bound, RFC3339")
	auditCmd.Flags().StringVar(&auditFlags.format, "format", "trail", "output: trail, json or csv")

	rootCmd.AddCommand(optionsCmd, impactCmd, auditCmd)
}
