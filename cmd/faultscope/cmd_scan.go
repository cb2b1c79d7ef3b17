package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/query"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan BASE_PATH",
		Short: "Scan the latest snapshot log for SetFunc faults",
		Long: `Find the first snapshot directory under BASE_PATH, search its log for
SetFunc lines with a severe fu_st status and summarize each fault found,
including troubleshooting guidance when a guide file is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := setup()
			if err != nil {
				return err
			}
			defer done()

			s, err := newSession(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.engine.ScanSetFunc(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(report)
			}
			fmt.Println(colorizeScanText(query.RenderScanText(report)))
			return nil
		},
	}
}
