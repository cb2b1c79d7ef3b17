package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/cleanup"
	"github.com/willibrandon/faultscope/internal/storage/sqlite"
)

func newCleanupCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete downloaded logs past their retention",
		Long: `Locally searched logs are downloaded into the cache directory and
registered for deletion. cleanup removes every registration older than
cleanup.retention (default 24h). Use --list to show registrations instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := setup()
			if err != nil {
				return err
			}
			defer done()

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if list {
				regs, err := sqlite.NewCleanupStore(db).All(cmd.Context())
				if err != nil {
					return err
				}
				return printRegistrations(regs)
			}

			return runSweep(cmd, db, cfg.Cleanup.Retention)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list registrations without deleting anything")
	return cmd
}

func runSweep(cmd *cobra.Command, db *sqlite.DB, retention time.Duration) error {
	mgr := cleanup.NewManager(sqlite.NewCleanupStore(db), retention)
	report, err := mgr.Sweep(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		failed := make(map[string]string, len(report.Failed))
		for path, ferr := range report.Failed {
			failed[path] = ferr.Error()
		}
		return printJSON(map[string]any{
			"removed": report.Removed,
			"failed":  failed,
		})
	}

	for _, path := range report.Removed {
		fmt.Printf("%s %s\n", healthyFormat("removed"), path)
	}
	paths := make([]string, 0, len(report.Failed))
	for path := range report.Failed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Printf("%s %s: %v\n", criticalFormat("failed"), path, report.Failed[path])
	}
	fmt.Printf("%d removed, %d failed\n", len(report.Removed), len(report.Failed))
	return nil
}

func printRegistrations(regs []sqlite.Registration) error {
	if jsonOutput {
		return printJSON(regs)
	}
	if len(regs) == 0 {
		fmt.Println("No registrations.")
		return nil
	}
	for _, r := range regs {
		state := warningFormat("pending")
		switch {
		case r.CleanedAt != nil:
			state = healthyFormat("cleaned " + humanize.Time(*r.CleanedAt))
		case r.Error != "":
			state = criticalFormat("failed: " + r.Error)
		}
		fmt.Printf("%s  %s  %s\n", dimFormat(humanize.Time(r.RegisteredAt)), r.Path, state)
	}
	return nil
}
