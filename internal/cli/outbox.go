package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// OutboxReport is the output of the outbox commands.
type OutboxReport struct {
	Tenants map[string]int `json:"tenants"`
	Total   int            `json:"total"`
	Action  string         `json:"action"` // "relayed" or "pending"
}

// WriteText prints the per tenant counts.
func (r OutboxReport) WriteText(w io.Writer) error {
	ids := make([]string, 0, len(r.Tenants))
	for id := range r.Tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "%s: %d %s\n", id, r.Tenants[id], r.Action)
	}
	_, err := fmt.Fprintf(w, "total: %d %s\n", r.Total, r.Action)
	return err
}

// NewOutboxCommand creates the outbox command group.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and relay the change event outbox",
	}
	cmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "limit to one tenant (default all tenants in DATA_DIR)")

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Relay pending outbox records to the broker now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutbox(cmd, rootOpts, tenantID, true)
		},
	}
	pending := &cobra.Command{
		Use:   "pending",
		Short: "Count outbox records not yet relayed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutbox(cmd, rootOpts, tenantID, false)
		},
	}
	cmd.AddCommand(flush, pending)
	return cmd
}

func runOutbox(cmd *cobra.Command, opts *RootOptions, tenantID string, relay bool) error {
	out := NewOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	sess, err := openSession(opts)
	if err != nil {
		return out.Fail(GetExitCode(err), CodeConfig, "start", err)
	}
	defer sess.Close()

	var ids []string
	if tenantID != "" {
		if _, err := sess.existingTenant(ctx, tenantID); err != nil {
			return out.Fail(ExitCommandError, CodeTenant, "open tenant", err)
		}
		ids = []string{tenantID}
	} else if ids, err = sess.app.OpenExisting(ctx); err != nil {
		return out.Fail(ExitCommandError, CodeTenant, "open tenants", err)
	}

	report := OutboxReport{Tenants: make(map[string]int, len(ids)), Action: "pending"}
	if relay {
		report.Action = "relayed"
	}
	for _, id := range ids {
		out.VerboseLog("%s %s", report.Action, id)
		var n int
		if relay {
			n, err = sess.app.Relay().FlushTenant(ctx, id)
			if err != nil {
				return out.Fail(ExitFailure, CodeRelayFailed, fmt.Sprintf("relay tenant %s", id), err)
			}
		} else {
			t, err := sess.app.Tenant(ctx, id)
			if err != nil {
				return out.Fail(ExitCommandError, CodeTenant, "open tenant", err)
			}
			if n, err = t.Store.CountPendingOutbox(ctx); err != nil {
				return out.Fail(ExitFailure, CodeTenant, fmt.Sprintf("count outbox of %s", id), err)
			}
		}
		report.Tenants[id] = n
		report.Total += n
	}
	return out.Success(report)
}
