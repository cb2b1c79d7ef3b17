package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/storage/sqlite"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent queries",
		Args:  cobra.NoArgs,
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

			runs, err := sqlite.NewHistoryStore(db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("No queries recorded.")
				return nil
			}
			for _, r := range runs {
				truncated := ""
				if r.Truncated {
					truncated = warningFormat(" (truncated)")
				}
				fmt.Printf("%s  %s  %s [%s]  %s, %d file(s), %d match(es)%s, %s\n",
					dimFormat(humanize.Time(r.QueriedAt)),
					locationFormat(r.RemotePath),
					strings.Join(r.Keywords, ", "),
					r.Logic,
					r.MethodUsed,
					r.FilesSearched,
					r.TotalMatches,
					truncated,
					r.Duration.Round(time.Millisecond),
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of queries to show")
	return cmd
}
