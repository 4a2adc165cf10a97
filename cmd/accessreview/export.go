package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyforge/accessreview/internal/config"
	"github.com/keyforge/accessreview/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export CERTIFICATION_ID",
	Short: "Download a certification's access as an Excel workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client, err := newClient(ctx, cfg)
		if err != nil {
			return err
		}
		exporter := &export.Exporter{Querier: client, RowLimit: cfg.ExportRowLimit}

		var buf bytes.Buffer
		filename, err := exporter.Export(ctx, &buf, args[0])
		if err != nil {
			return err
		}
		if out := strings.TrimSpace(exportOut); out != "" {
			filename = out
		}
		if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
			return err
		}
		cmd.Printf("wrote %s\n", filename)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: the dated export file name)")
}
