package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-p2p-workflow/internal/client"
	"github.com/pesio-ai/be-p2p-workflow/internal/export"
	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch the analysis report",
		Long: `Fetch the full analysis report from a running service and write it
as JSON (default) or as an Excel workbook. A workbook needs --out.`,
		RunE: runReport,
	}

	cmd.Flags().StringP("format", "f", "json", "Output format (json, xlsx)")
	cmd.Flags().StringP("out", "o", "", "Output file (default stdout, json only)")
	cmd.Flags().Duration("timeout", 30*time.Second, "Request timeout")

	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if format != "json" && format != "xlsx" {
		return fmt.Errorf("unknown format %q", format)
	}
	if format == "xlsx" && out == "" {
		return fmt.Errorf("--out is required for xlsx output")
	}

	c, err := dial(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	report, err := c.GetReport(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch report: %w", err)
	}
	return writeReport(cmd.OutOrStdout(), report, format, out)
}

func writeReport(stdout io.Writer, report *reasoning.Report, format, out string) error {
	if format == "xlsx" {
		if err := export.NewReportExporter(export.DefaultExcelOptions()).SaveAs(report, out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Report (revision %d) written to %s\n", report.Revision, out)
		return nil
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show workflow statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.GetStatistics(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to fetch statistics: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func dial(cmd *cobra.Command) (*client.AnalysisGRPCClient, error) {
	addr, _ := cmd.Flags().GetString("addr")
	c, err := client.NewAnalysisGRPCClient(addr, "p2pctl/"+Version)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return c, nil
}
