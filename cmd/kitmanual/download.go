package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// downloadCmd creates the "download" subcommand.
func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download PDFs for stored manuals",
		Long: `Download the PDF of every selected manual into the storage root. Files
already on disk are never fetched again, and legacy stored paths are
rewritten relative to the storage root. Safe to interrupt and re-run.`,
		Args: cobra.NoArgs,
		RunE: runDownload,
	}
	addCrawlFlags(cmd)
	addDownloadFlags(cmd)
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	recs, err := a.store.List(ctx, a.downloadQuery())
	if err != nil {
		return fmt.Errorf("select manuals: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("Nothing to download.")
		return nil
	}

	f, err := a.fetcher()
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := a.downloader(f)
	if err != nil {
		return err
	}
	_, summary, err := d.Run(ctx, recs)
	printDownloadSummary(summary, err)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}
