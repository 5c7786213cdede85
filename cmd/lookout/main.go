// Command `lookout` is the end-user CLI for the lookoutd daemon.
//
// Lookout resolves hostnames to IPv4 addresses through a background
// daemon that keeps a shared DNS resolver context warm across
// requests. The CLI talks to the daemon over a Unix domain socket.
//
// Usage:
//
//	lookout resolve <host>...  - Resolve one or more hostnames
//	lookout status             - Show daemon uptime and counters
//	lookout version            - Show version information
//
// Examples:
//
//	lookout resolve example.com
//	lookout resolve example.com example.org --timeout 2s
//	lookout status
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/siftech/lookout/internal/buildinfo"
	"github.com/siftech/lookout/internal/config"
	"github.com/siftech/lookout/pkg/api"
	"github.com/siftech/lookout/pkg/client"
)

func main() {
	cfg, err := config.New().Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cli := client.New(cfg.Socket.Path)

	root := &cobra.Command{
		Use:   "lookout",
		Short: "Lookout hostname resolution CLI",
		Long: `Lookout resolves hostnames to IPv4 addresses through the lookoutd daemon.
The daemon keeps a shared resolver context warm so repeated lookups reuse it.`,
	}

	// ---- version command ----
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Show version information for the Lookout CLI and daemon.`,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", buildinfo.Version)
			fmt.Printf("commit: %s\n", buildinfo.Commit)
		},
	}

	// ---- resolve command ----
	var timeout time.Duration
	resolveCmd := &cobra.Command{
		Use:   "resolve <host>...",
		Short: "Resolve hostnames to IPv4 addresses",
		Long: `Resolve one or more hostnames to their first IPv4 address.
Hosts are resolved concurrently; failures are reported together after
the successful lookups are printed.

Examples:
  lookout resolve example.com
  lookout resolve example.com example.org
  lookout resolve example.com --timeout 2s`,
		Example: "lookout resolve example.com example.org",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			results := make([]*api.ResolveResponse, len(args))
			errs := make([]error, len(args))

			g, ctx := errgroup.WithContext(context.Background())
			g.SetLimit(4)
			for i, host := range args {
				i, host := i, host
				g.Go(func() error {
					reqCtx, cancel := context.WithTimeout(ctx, timeout)
					defer cancel()

					res, err := cli.Resolve(reqCtx, host)
					if err != nil {
						errs[i] = fmt.Errorf("%s: %w", host, err)
						return nil // report failures together below
					}
					results[i] = &res
					return nil
				})
			}
			_ = g.Wait()

			renderResults(results)
			return multierr.Combine(errs...)
		},
	}
	resolveCmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "per-host resolution timeout")

	// ---- status command ----
	statusCmd := &cobra.Command{
		Use:     "status",
		Short:   "Show daemon status and resolver counters",
		Example: "lookout status",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			st, err := cli.Status(ctx)
			if err != nil {
				return err
			}

			color.New(color.Bold).Println("LOOKOUTD STATUS:")
			fmt.Printf("  version:  %s (%s)\n", st.Version, st.Commit)
			fmt.Printf("  uptime:   %s\n", st.Uptime.Round(time.Second))
			fmt.Printf("  tasks:    %d\n", st.TasksRun)
			fmt.Printf("  lookups:  %d issued, %d resolved, %d failed, %d dropped, %d inline\n",
				st.Resolver.Issued, st.Resolver.Resolved, st.Resolver.Failed,
				st.Resolver.FamilyDropped, st.Resolver.Inline)
			fmt.Printf("  context:  %d refs, %d pending handles\n",
				st.Resolver.ContextRefs, st.Resolver.PendingHandles)
			return nil
		},
	}

	root.AddCommand(resolveCmd, statusCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// renderResults prints the successful lookups as a table.
func renderResults(results []*api.ResolveResponse) {
	resolved := 0
	for _, r := range results {
		if r != nil {
			resolved++
		}
	}
	if resolved == 0 {
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Host", "Address", "Family", "Elapsed"})
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
		tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor},
	)
	table.SetBorder(false)
	table.SetColumnColor(
		tablewriter.Colors{tablewriter.FgHiWhiteColor},
		tablewriter.Colors{tablewriter.FgGreenColor},
		tablewriter.Colors{tablewriter.FgYellowColor},
		tablewriter.Colors{tablewriter.FgHiWhiteColor},
	)

	for _, r := range results {
		if r == nil {
			continue
		}
		table.Append([]string{r.Host, r.Address, r.Family, r.Elapsed.Round(time.Millisecond).String()})
	}

	color.New(color.Bold).Println("RESOLVED:")
	table.Render()
}
