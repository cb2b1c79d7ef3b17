package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/stats"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats PATH FAULT_ID",
		Short: "Show occurrence statistics for one fault",
		Long: `Search PATH for every spelling of FAULT_ID and report how often the fault
was raised, when it was first and last seen and its final status.

FAULT_ID is a hex value such as 0x0165, 0x165 or 165.`,
		Args: cobra.ExactArgs(2),
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

			rec, err := s.engine.FaultStatistics(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(rec)
			}
			printFaultRecord(rec, cfg.Scan.SeverityStatuses)
			return nil
		},
	}
}

func printFaultRecord(rec stats.Record, severe []int64) {
	fmt.Printf("%s %s\n", headerFormat("Fault"), headerFormat(rec.FaultID))
	fmt.Printf("  Occurrences:   %d\n", rec.OccurrenceCount)
	fmt.Printf("  Matched lines: %d\n", rec.MatchedLines)
	fmt.Printf("  First seen:    %s\n", orDash(rec.FirstOccurrence))
	fmt.Printf("  Last seen:     %s\n", orDash(rec.LastOccurrence))
	if rec.FinalStatus == nil {
		fmt.Printf("  Final status:  %s\n", dimFormat("-"))
		return
	}
	format := statusFormat(*rec.FinalStatus, severe)
	fmt.Printf("  Final status:  %s\n", format(fmt.Sprintf("0x%X", *rec.FinalStatus)))
}

func orDash(s *string) string {
	if s == nil {
		return dimFormat("-")
	}
	return *s
}
