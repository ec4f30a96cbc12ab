package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ic-csd",
	Short: "iClaustron cluster server daemon",
	Long: `ic-csd is the cluster server daemon: it owns one grid's generation
files, accepts configuration-protocol connections from data servers,
cluster managers, and API clients, and (when configured with peers)
replicates generation commits across the grid's cluster-server peers.`,
}

func init() {
	rootCmd.PersistentFlags().String("cs_connectstring", "", "comma-separated cluster server hostname:port list")
	rootCmd.PersistentFlags().String("cs_hostname", "localhost", "this cluster server's own hostname")
	rootCmd.PersistentFlags().Int("cs_port", 1186, "port to accept configuration-protocol connections on")
	rootCmd.PersistentFlags().Int("node_id", 0, "this process's node id within the grid (0 lets the grid assign one)")
	rootCmd.PersistentFlags().String("data_dir", "./ic-csd-data", "directory holding generation files and the version lock")
	rootCmd.PersistentFlags().Int("num_threads", 16, "bounded worker-pool size for the accept loop")
	rootCmd.PersistentFlags().Bool("use_iclaustron_cluster_server", true, "speak the multi-cluster iClaustron protocol extension")
	rootCmd.PersistentFlags().Bool("daemonize", false, "documented for parity with the original CLI; actual daemonization is left to systemd/init")
	rootCmd.PersistentFlags().String("basedir", ".", "base directory for relative paths")
	rootCmd.PersistentFlags().Int("iclaustron_version", 0x070600, "protocol/codec version word advertised on connect")
	rootCmd.PersistentFlags().String("debug_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("debug_file", "", "write logs to this file instead of stdout")
	rootCmd.PersistentFlags().Bool("debug_screen", true, "accepted for parity with the original CLI; has no effect")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("debug_level")
	debugFile, _ := rootCmd.PersistentFlags().GetString("debug_file")

	cfg := log.Config{Level: log.Level(level)}
	if debugFile != "" {
		f, err := os.OpenFile(debugFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			cfg.Output = f
		}
	}
	log.Init(cfg)
}
