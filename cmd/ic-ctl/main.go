package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/csproto"
	"github.com/iClaustron/iclaustron-sub000/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ic-ctl",
	Short: "Configuration-protocol client for an iClaustron cluster server",
	Long: `ic-ctl drives the client side of the configuration protocol
(spec §4.D) against a running ic-csd: fetching a node's assigned id and
cluster configuration, and listing the grid's clusters.`,
}

func init() {
	rootCmd.PersistentFlags().String("cs_connectstring", "localhost:1186", "comma-separated cluster server hostname:port list, tried in order")
	rootCmd.PersistentFlags().Int("node_id", 0, "node id to request (0 lets the cluster server assign one)")
	rootCmd.PersistentFlags().Bool("use_iclaustron_cluster_server", true, "speak the multi-cluster iClaustron protocol extension")
	rootCmd.PersistentFlags().Int("iclaustron_version", 0x070600, "protocol/codec version word to advertise")
	rootCmd.PersistentFlags().String("debug_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("dial_timeout", 5*time.Second, "per-endpoint dial timeout")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(getConfigCmd)
	rootCmd.AddCommand(clusterListCmd)
	rootCmd.AddCommand(nodeIDCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("debug_level")
	log.Init(log.Config{Level: log.Level(level)})
}

// endpoints parses --cs_connectstring into a dial-ordered address list.
func endpoints() []string {
	raw, _ := rootCmd.PersistentFlags().GetString("cs_connectstring")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// protocolVersion folds --iclaustron_version with the iclaustron bit per
// --use_iclaustron_cluster_server (spec §4.D get-nodeid/get-config).
func protocolVersion() int {
	version, _ := rootCmd.PersistentFlags().GetInt("iclaustron_version")
	useIC, _ := rootCmd.PersistentFlags().GetBool("use_iclaustron_cluster_server")
	if useIC {
		version |= csproto.IClaustronBit
	} else {
		version &^= csproto.IClaustronBit
	}
	return version
}

func dialer() csproto.Dialer {
	timeout, _ := rootCmd.PersistentFlags().GetDuration("dial_timeout")
	return func(addr string) (net.Conn, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}
}
