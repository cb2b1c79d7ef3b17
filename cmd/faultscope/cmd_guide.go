package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/faultid"
	"github.com/willibrandon/faultscope/internal/match"
)

func newGuideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guide FAULT_ID",
		Short: "Show troubleshooting guidance for a fault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := setup()
			if err != nil {
				return err
			}
			defer done()

			id, err := faultid.Normalize(args[0])
			if err != nil {
				return err
			}
			if cfg.Guides.File == "" {
				return errors.New("no guide file configured (set guides.file in config.yaml)")
			}

			guides, err := loadGuides(cfg)
			if err != nil {
				return err
			}

			entry, ok := guides.Lookup(id.Canonical)
			if !ok {
				return fmt.Errorf("no guidance recorded for fault %s", id.Canonical)
			}

			if jsonOutput {
				return printJSON(entry)
			}

			fmt.Printf("%s %s\n", headerFormat(id.Canonical), entry.Name)
			if entry.Severity != "" {
				fmt.Printf("Severity: %s\n", criticalFormat(entry.Severity))
			}
			fmt.Println()
			for _, line := range match.SplitLines(entry.Guidance) {
				fmt.Println("  " + line)
			}
			return nil
		},
	}
}
