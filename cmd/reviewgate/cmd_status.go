package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"reviewgate/pkg/config"
	"reviewgate/pkg/monitor"
	"reviewgate/pkg/protocol"
)

// statusReport is the printable result of a one-shot health check.
type statusReport struct {
	Status    protocol.Status `json:"status" yaml:"status"`
	Healthy   bool            `json:"healthy" yaml:"healthy"`
	Marker    string          `json:"marker" yaml:"marker"`
	MarkerAge string          `json:"marker_age,omitempty" yaml:"marker_age,omitempty"`
}

// newStatusCmd creates the "reviewgate status" subcommand.
func newStatusCmd() *cobra.Command {
	var (
		configPath string
		dir        string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a reviewer is connected",
		Long:  "Probes the freshness marker in the gate directory and reports the\nconnection state.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Dir = dir
			}
			gateDir := cfg.Dir
			if gateDir == "" {
				gateDir = protocol.GateDir()
			}

			report := checkStatus(gateDir, cfg)
			return writeReport(cmd.OutOrStdout(), report, output)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&dir, "dir", "", "gate directory (overrides config)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json, or yaml")

	return cmd
}

func checkStatus(gateDir string, cfg config.Config) statusReport {
	marker := filepath.Join(gateDir, protocol.MarkerFileName)
	mon := monitor.New(monitor.Config{
		MarkerPath:      marker,
		ActiveThreshold: cfg.Monitor.ActiveThreshold.Std(),
		CacheTTL:        cfg.Monitor.CacheTTL.Std(),
	})
	status := mon.Refresh()

	report := statusReport{
		Status:  status,
		Healthy: status.Healthy(),
		Marker:  marker,
	}
	if info, err := os.Stat(marker); err == nil {
		report.MarkerAge = time.Since(info.ModTime()).Round(time.Second).String()
	}
	return report
}

func writeReport(w io.Writer, report statusReport, format string) error {
	switch format {
	case "text":
		fmt.Fprintf(w, "status: %s\n", report.Status)
		fmt.Fprintf(w, "marker: %s\n", report.Marker)
		if report.MarkerAge != "" {
			fmt.Fprintf(w, "marker age: %s\n", report.MarkerAge)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
