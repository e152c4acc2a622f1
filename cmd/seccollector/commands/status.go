package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shizukutanaka/seccollector/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running collector",
	Long:  `Query the status server of a running collector (monitoring.listen_addr).`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("api-url", "http://127.0.0.1:9108", "Status server URL")
	statusCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	format, _ := cmd.Flags().GetString("format")

	status, err := fetchStatus(apiURL)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		return yaml.NewEncoder(out).Encode(status)
	case "table":
		displayTable(out, status)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func fetchStatus(apiURL string) (*monitoring.Status, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(apiURL + "/api/v1/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status server returned %d", resp.StatusCode)
	}

	var status monitoring.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func displayTable(out io.Writer, s *monitoring.Status) {
	fmt.Fprintf(out, "seccollector %s, up %s (since %s)\n\n", s.Version, s.Uptime, humanize.Time(s.StartedAt))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUFFER\tITEMS\tCAPACITY\tEVICTED")
	for _, b := range s.Buffers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name, humanize.Comma(int64(b.Len)), humanize.Comma(int64(b.Capacity)), humanize.Comma(int64(b.Evicted)))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SOURCE\tPATH\tOFFSET\tINODE")
	for _, src := range s.Sources {
		inode := "-"
		if src.Read {
			inode = fmt.Sprintf("%d", src.Inode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", src.Name, src.Path, src.OffsetText, inode)
	}
	w.Flush()

	if s.Latest != nil {
		fmt.Fprintf(out, "\nLatest metrics (%s): cpu %.1f%%, memory %.1f%%, connections %d\n",
			humanize.Time(s.Latest.Timestamp), s.Latest.CPUUsage, s.Latest.MemoryUsage, s.Latest.NetworkConnections)
	}
	if len(s.Baseline) > 0 {
		fmt.Fprintln(out, "\nBaseline:")
		names := make([]string, 0, len(s.Baseline))
		for name := range s.Baseline {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b := s.Baseline[name]
			fmt.Fprintf(out, "  %-20s mean %.2f  std %.2f  range [%.2f, %.2f]\n", name, b.Mean, b.Std, b.Min, b.Max)
		}
	}

	fmt.Fprintf(out, "\nRecent events: %s  Threat indicators: %s  Sinks: %v\n",
		humanize.Comma(int64(s.RecentEvents)), humanize.Comma(int64(s.Indicators)), s.Sinks)
	if len(s.Errors) > 0 {
		fmt.Fprintf(out, "Errors: %v\n", s.Errors)
	}
}
