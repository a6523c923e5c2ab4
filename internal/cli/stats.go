package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/ctadmin/api"
)

// statRows is a two-column "label: value" listing.
type statRows struct {
	tw *tabwriter.Writer
}

func (r *statRows) add(label string, value any) {
	fmt.Fprintf(r.tw, "%s:\t%v\n", label, value)
}

func (r *statRows) flush() error {
	return r.tw.Flush()
}

func renderStats(w io.Writer, s api.Stats) *statRows {
	rows := &statRows{tw: newTable(w)}
	rows.add("Total", s.TotalAccounts)
	rows.add(string(api.StatusPending), s.Pending)
	rows.add(string(api.StatusApproved), s.Approved)
	rows.add(string(api.StatusInCopy), s.InCopy)
	rows.add(string(api.StatusExpired), s.Expired)
	rows.add(string(api.StatusSuspended), s.Suspended)
	return rows
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show account counts and revenue",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				stats, err := inv.client.Accounts().Stats(ctx)
				if err != nil {
					return err
				}
				return inv.out.Success(stats, func(w io.Writer) error {
					rows := renderStats(w, stats.Stats)
					rows.add("Revenue", stats.TotalRevenue)
					rows.add("This month", stats.AccountsThisMonth)
					return rows.flush()
				})
			})
		},
	}
}

// NewPublicStatsCommand creates the public-stats command. It needs no
// session.
func NewPublicStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "public-stats",
		Short:         "Show the public account counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				stats, err := inv.client.Public().Stats(ctx)
				if err != nil {
					return err
				}
				return inv.out.Success(stats, func(w io.Writer) error {
					return renderStats(w, stats).flush()
				})
			})
		},
	}
}
