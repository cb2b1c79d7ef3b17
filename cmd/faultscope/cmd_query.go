package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/query"
)

type queryFlags struct {
	keywords      []string
	logic         string
	caseSensitive bool
	contextLines  int
	extract       string
	maxResults    int
	method        string
	format        string
}

func newQueryCmd() *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query PATH [KEYWORD...]",
		Short: "Search remote logs for keywords",
		Long: `Search a remote file or directory tree for lines containing keywords.

PATH may be a single file or a directory; directories are searched
recursively for log files (.log, .txt and compressed .gz, .zst, .lz4).
Keywords can be given as arguments or with --keyword.

Examples:
  faultscope query /var/log/device ERROR
  faultscope query /var/log/device -k SetFunc -k fu_st --logic AND --context 3
  faultscope query /var/log/device/app.log -k fa_id --extract 'fa_id:(0x[0-9a-f]+)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args[0], args[1:])
			if err != nil {
				return err
			}
			return runQuery(cmd, req)
		},
	}

	cmd.Flags().StringArrayVarP(&f.keywords, "keyword", "k", nil, "keyword to search for (repeatable)")
	cmd.Flags().StringVar(&f.logic, "logic", string(match.LogicOR), "how keywords combine: AND or OR")
	cmd.Flags().BoolVar(&f.caseSensitive, "case-sensitive", false, "match keywords case-sensitively")
	cmd.Flags().IntVarP(&f.contextLines, "context", "C", 0, "lines of context before and after each match")
	cmd.Flags().StringVar(&f.extract, "extract", "", "regular expression to extract from each match")
	cmd.Flags().IntVarP(&f.maxResults, "max-results", "n", query.DefaultMaxResults, "maximum matches to return")
	cmd.Flags().StringVar(&f.method, "method", string(query.MethodAuto), "search method: auto, local or remote")
	cmd.Flags().StringVar(&f.format, "format", string(query.FormatText), "output format: json, text or both")

	return cmd
}

// request builds a query request from the flags. Validation of limits is
// left to the engine.
func (f *queryFlags) request(path string, args []string) (query.Request, error) {
	keywords := append(append([]string{}, args...), f.keywords...)
	req := query.NewRequest(path, keywords...)

	logic, err := match.ParseLogic(f.logic)
	if err != nil {
		return req, err
	}
	method, err := query.ParseMethod(f.method)
	if err != nil {
		return req, err
	}
	format, err := query.ParseOutputFormat(f.format)
	if err != nil {
		return req, err
	}
	if jsonOutput {
		format = query.FormatJSON
	}

	req.Logic = logic
	req.FuzzyMatch = !f.caseSensitive
	req.ContextLines = f.contextLines
	req.ExtractPattern = f.extract
	req.MaxResults = f.maxResults
	req.Method = method
	req.OutputFormat = format
	return req, nil
}

func runQuery(cmd *cobra.Command, req query.Request) error {
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

	res, err := s.engine.Query(cmd.Context(), req)
	if err != nil {
		return err
	}

	if req.OutputFormat != query.FormatText {
		return printJSON(res)
	}
	fmt.Println(colorizeQueryText(res.Text, res.Params.Keywords, res.Params.FuzzyMatch))
	return nil
}
