package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vitalsops/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest vitals and roster to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()
		if _, err := rt.requireSession(ctx); err != nil {
			return err
		}
		rows, err := rt.client.LoadLatest(ctx)
		if err != nil {
			return err
		}
		roster, err := rt.client.Soldiers(ctx)
		if err != nil {
			rt.log.Warn("[Export] roster unavailable, exporting vitals only", "error", err)
		}
		now := time.Now()
		data, err := export.BuildVitalsXLSX(rows, roster, now)
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = fmt.Sprintf("vitals-%s.xlsx", now.Format("20060102-150405"))
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d readings to %s\n", len(rows), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default vitals-<timestamp>.xlsx)")
}
