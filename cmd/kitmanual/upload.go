package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/upload"
)

var uploadBucket string

// uploadCmd creates the "upload" subcommand.
func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Publish downloaded PDFs to Google Cloud Storage",
		Args:  cobra.NoArgs,
		RunE:  runUpload,
	}
	addDownloadFlags(cmd)
	cmd.Flags().StringVar(&uploadBucket, "bucket", "", "destination bucket")
	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if uploadBucket != "" {
		a.cfg.Upload.Bucket = uploadBucket
	}
	sink, err := upload.NewGCSSink(ctx, a.cfg.Upload.Bucket, a.cfg.Upload.PublicBaseURL, a.logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	paths, err := a.resolver()
	if err != nil {
		return err
	}
	u := upload.NewUploader(a.store, sink, paths, a.cfg.Upload.Prefix, a.cfg.Upload.Concurrency, a.metrics, a.logger)

	summary, err := u.Run(ctx, catalog.Query{
		Grades: a.cfg.Download.Grades,
		IDs:    a.cfg.Download.IDs,
		Limit:  a.cfg.Download.Limit,
	})
	printUploadSummary(summary, err)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}
