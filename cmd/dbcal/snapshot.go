package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbcal/internal/capture"
	"dbcal/internal/config"
)

var (
	snapshotURL    string
	snapshotOutput string

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the calendar page as a PNG with headless Chromium",
		Long: `Snapshot loads the calendar page of a running "dbcal serve" (or --url)
in headless Chromium and writes a PNG of the rendered calendar.`,
		Args: cobra.NoArgs,
		RunE: runSnapshot,
	}
)

func init() {
	snapshotCmd.Flags().StringVar(&snapshotURL, "url", "", "Page to capture (default: capture.url or the local /calendar)")
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "", "PNG file (default: capture.output)")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if snapshotURL != "" {
		cfg.Capture.URL = snapshotURL
	}

	opts := captureOptions(cfg, snapshotOutput)
	png, err := capture.CalendarPNG(cmd.Context(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes from %s\n", opts.Output, len(png), opts.URL)
	return nil
}
