package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/config"
	"github.com/shizukutanaka/seccollector/internal/metrics"
	"github.com/shizukutanaka/seccollector/internal/parser"
	"github.com/shizukutanaka/seccollector/internal/tailer"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configuration, log sources and metric collection",
	Long: `Load the configuration, report every log source with its read cursor and
sample the system metrics once. Nothing is exported.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("skip-metrics", false, "Do not sample system metrics")
}

func runCheck(cmd *cobra.Command, args []string) error {
	skipMetrics, _ := cmd.Flags().GetBool("skip-metrics")
	out := cmd.OutOrStdout()

	manager, err := config.NewManager(zap.NewNop(), cfgFile)
	if err != nil {
		return fmt.Errorf("configuration %s: %w", cfgFile, err)
	}
	cfg := manager.Get()
	fmt.Fprintf(out, "Configuration: %s (ok)\n", cfgFile)
	fmt.Fprintf(out, "Collection interval: %s\n\n", cfg.Interval())

	printSources(out, cfg)

	if skipMetrics {
		return nil
	}
	fmt.Fprintln(out)
	return printMetrics(cmd.Context(), out, cfg)
}

func printSources(out io.Writer, cfg *config.Config) {
	names := make([]string, 0, len(cfg.LogPaths))
	for name := range cfg.LogPaths {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPATH\tSIZE\tMODIFIED\tINODE\tSTATUS")
	for _, name := range names {
		path := cfg.LogPaths[name]
		if !parser.Supported(name) {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\tno parser for source\n", name, path)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t%v\n", name, path, err)
			continue
		}

		status := "readable"
		inode := "-"
		if id, size, err := tailer.Stat(path); err != nil {
			status = err.Error()
		} else {
			inode = fmt.Sprintf("%d", id.Inode)
			status = fmt.Sprintf("readable, first read %s", humanize.IBytes(uint64(min(size, tailer.DefaultMaxRead))))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, path, humanize.IBytes(uint64(info.Size())), humanize.Time(info.ModTime()), inode, status)
	}
	w.Flush()
}

func printMetrics(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sampler := metrics.NewComposite(
		metrics.NewSystemCollector(zap.NewNop()),
		metrics.NewNetworkCollector(),
		metrics.NewComplianceCollector(func() float64 { return cfg.Analytics.ComplianceScore }),
	)
	snap, err := sampler.Collect(ctx)

	fmt.Fprintf(out, "CPU usage:           %.1f%% (alert above %.0f%%)\n", snap.CPUUsage, cfg.Thresholds.CPUHigh)
	fmt.Fprintf(out, "Memory usage:        %.1f%% (alert above %.0f%%)\n", snap.MemoryUsage, cfg.Thresholds.MemoryHigh)
	mounts := make([]string, 0, len(snap.DiskUsage))
	for m := range snap.DiskUsage {
		mounts = append(mounts, m)
	}
	sort.Strings(mounts)
	for _, m := range mounts {
		fmt.Fprintf(out, "Disk usage %-9s %.1f%% (alert above %.0f%%)\n", m+":", snap.DiskUsage[m], cfg.Thresholds.DiskHigh)
	}
	fmt.Fprintf(out, "Network connections: %s (alert above %s)\n",
		humanize.Comma(int64(snap.NetworkConnections)), humanize.Comma(int64(cfg.Thresholds.NetworkConnectionsHigh)))
	fmt.Fprintf(out, "Active processes:    %s\n", humanize.Comma(int64(snap.ActiveProcesses)))
	fmt.Fprintf(out, "Compliance score:    %.1f\n", snap.ComplianceScore)

	if err != nil {
		fmt.Fprintf(out, "\nSome metrics could not be sampled: %v\n", err)
	}
	return nil
}
