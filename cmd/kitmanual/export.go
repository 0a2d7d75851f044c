package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/storage"
)

var (
	exportFormat string
	exportOutput string
)

// exportCmd creates the "export" subcommand.
func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the catalog to JSON, JSONL or CSV",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	cmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output formats, comma separated: json, jsonl, csv")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "./output", "output directory")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.store.List(cmd.Context(), catalog.Query{})
	if err != nil {
		return fmt.Errorf("list manuals: %w", err)
	}

	exp, err := storage.NewExporter(exportFormat, exportOutput, a.logger)
	if err != nil {
		return err
	}
	if err := exp.Write(recs); err != nil {
		_ = exp.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := exp.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	fmt.Printf("Exported %d manuals (%s) to %s\n", len(recs), exportFormat, exportOutput)
	return nil
}
