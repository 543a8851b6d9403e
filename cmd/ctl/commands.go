package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leozw/storefront-controlplane/internal/controlplane"
	"github.com/leozw/storefront-controlplane/internal/core"
)

type options struct {
	server  string
	token   string
	timeout time.Duration
	json    bool
}

func (o *options) client() *apiClient {
	return newAPIClient(o.server, o.token, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "ctl",
		Short:        "Operate the storefront control plane",
		Long:         "ctl inspects platform health and manages tenant lifecycles through a running control plane.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("CONTROLPLANE_SERVER", "http://localhost:8080"), "control plane address")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CONTROLPLANE_TOKEN"), "bearer token for the API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	rootCmd.AddCommand(newHealthCmd(opts), newTenantsCmd(opts))
	return rootCmd
}

func newHealthCmd(opts *options) *cobra.Command {
	var refresh, trends bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the aggregated platform health snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			view, err := c.Health(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printHealth(cmd.OutOrStdout(), view)

			if !trends {
				return nil
			}
			list, err := c.Trends(cmd.Context())
			if err != nil {
				return err
			}
			printTrends(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "probe now instead of reading the last snapshot")
	cmd.Flags().BoolVar(&trends, "trends", false, "also show metric trends")
	return cmd
}

func newTenantsCmd(opts *options) *cobra.Command {
	tenantsCmd := &cobra.Command{
		Use:     "tenants",
		Short:   "Manage tenant storefronts",
		Aliases: []string{"t"},
	}

	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.client().ListTenants(cmd.Context(), status)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), list)
			}
			printTenants(cmd.OutOrStdout(), list)
			return nil
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "only show tenants in this status")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one tenant and the actions it allows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			t, err := c.GetTenant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			actions, err := c.Actions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), map[string]any{"tenant": t, "actions": actions})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n  status: %s\n  owner:  %s\n", t.Name, t.ID, t.Status, t.OwnerEmail)
			for _, a := range actions {
				note := ""
				if a.Irreversible {
					note = " (irreversible)"
				}
				fmt.Fprintf(out, "  can %s -> %s%s\n", a.Action, a.Target, note)
			}
			return nil
		},
	}

	var spec core.TenantSpec
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.client().CreateTenant(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (%s), status %s\n", t.Slug, t.ID, t.Status)
			return nil
		},
	}
	createCmd.Flags().StringVar(&spec.Name, "name", "", "display name")
	createCmd.Flags().StringVar(&spec.Slug, "slug", "", "URL-safe slug, derived from the name when empty")
	createCmd.Flags().StringVar(&spec.OwnerEmail, "owner-email", "", "owner contact address")
	createCmd.Flags().StringVar(&spec.Plan, "plan", "", "billing plan")
	createCmd.Flags().StringVar(&spec.Region, "region", "", "hosting region")
	createCmd.Flags().StringVar(&spec.Environment, "environment", "", "deployment environment")
	_ = createCmd.MarkFlagRequired("name")

	tenantsCmd.AddCommand(listCmd, getCmd, createCmd)
	for _, action := range []core.TenantAction{core.ActionActivate, core.ActionSuspend, core.ActionResume, core.ActionArchive} {
		tenantsCmd.AddCommand(newTransitionCmd(opts, action))
	}
	return tenantsCmd
}

func newTransitionCmd(opts *options, action core.TenantAction) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   string(action) + " <id>",
		Short: fmt.Sprintf("Move a tenant to %s", action.Target()),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if action.Irreversible() && !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Archiving %s cannot be undone. Continue? [y/N] ", id))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("aborted")
				}
			}

			t, err := opts.client().Transition(cmd.Context(), id, action)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is now %s\n", t.ID, t.Status)
			return nil
		},
	}
	if action.Irreversible() {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	}
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printHealth(out io.Writer, view *controlplane.HealthView) {
	if view.State == controlplane.HealthPending || view.Snapshot == nil {
		fmt.Fprintln(out, "No health data yet")
		return
	}

	snap := view.Snapshot
	fmt.Fprintf(out, "Overall: %s (%s) at %s\n", view.Overall, view.State, snap.TakenAt.Format(time.RFC3339))
	if view.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", view.Error)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATUS\tREASON\tSTALE")
	for _, c := range snap.Components() {
		stale := ""
		if c.Placeholder {
			stale = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Source, c.Health.Level, c.Health.Reason, stale)
	}
	for _, s := range snap.Servers {
		fmt.Fprintf(w, "  %s\t%s\t%s\t\n", s.Name, s.Health.Level, s.Health.Reason)
	}
	w.Flush()
}

func printTrends(out io.Writer, trends []core.MetricTrend) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tDIRECTION\tCHANGE")
	for _, t := range trends {
		change := "-"
		if t.PercentChange != nil {
			change = fmt.Sprintf("%+.1f%%", *t.PercentChange)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Metric, t.Direction, change)
	}
	w.Flush()
}

func printTenants(out io.Writer, list *controlplane.TenantList) {
	switch list.Source {
	case controlplane.SourceNone:
		fmt.Fprintln(out, "Tenant list has not been loaded from the provisioning service yet")
		if list.Error != "" {
			fmt.Fprintf(out, "Last error: %s\n", list.Error)
		}
		return
	case controlplane.SourceCache:
		fmt.Fprintf(out, "Provisioning service unreachable, showing cached list: %s\n", list.Error)
	}

	if len(list.Tenants) == 0 {
		fmt.Fprintln(out, "No tenants")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSLUG\tSTATUS\tPLAN\tREGION")
	for _, t := range list.Tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.Status, t.Plan, t.Region)
	}
	w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
