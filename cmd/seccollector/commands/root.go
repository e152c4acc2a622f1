package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X .../commands.Version=..."
var Version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "seccollector",
	Short: "Host security telemetry collector",
	Long: `seccollector tails security logs, samples system metrics, keeps a statistical
baseline of the host and raises security, threat, resource and anomaly alerts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/seccollector/config.yaml", "Configuration file path")

	rootCmd.SetVersionTemplate(`seccollector {{.Version}}
` + fmt.Sprintf("Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "seccollector %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	})
}
