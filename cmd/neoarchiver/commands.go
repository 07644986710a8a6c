package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/neows-archiver/internal/crawl"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Archive the catalog starting at crawl.start_page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc service) error {
				res, err := svc.Crawl(ctx)
				printResult(cmd.OutOrStdout(), res)
				if err != nil {
					return fmt.Errorf("crawl aborted, resume with crawl.start_page=%d: %w", resumePage(res), err)
				}
				return nil
			})
		},
	}
}

// resumePage is the first page not fully processed.
func resumePage(res crawl.Result) int {
	if res.LastPage < 0 {
		return res.FirstPage
	}
	return res.LastPage + 1
}

func printResult(w io.Writer, res crawl.Result) {
	fmt.Fprintf(w, "run=%s state=%s pages=%d inserted=%d duplicates=%d skipped=%d lookup_failures=%d elapsed=%s\n",
		res.RunID, res.State, res.Pages, res.Inserted, res.Duplicates, res.Skipped, res.LookupFailures, res.Elapsed)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc service) error {
				if err := svc.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <id>",
		Short: "Print one normalized object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc service) error {
				rec, err := svc.Lookup(ctx, args[0])
				if err != nil {
					return fmt.Errorf("lookup %s: %w", args[0], err)
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newHazardousCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "hazardous",
		Short: "Print hazardous objects in a date window, nearest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc service) error {
				recs, err := svc.Hazardous(ctx, start, end)
				if err != nil {
					return fmt.Errorf("hazardous %s..%s: %w", start, end, err)
				}
				if recs == nil {
					recs = []neo.NormalizedRecord{}
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "window end (YYYY-MM-DD), at most 7 days after start")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
