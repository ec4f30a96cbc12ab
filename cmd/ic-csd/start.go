package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/csserver"
	"github.com/iClaustron/iclaustron-sub000/pkg/csserver/replication"
	"github.com/iClaustron/iclaustron-sub000/pkg/log"
	"github.com/iClaustron/iclaustron-sub000/pkg/metrics"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Resume ownership of an existing generation and start serving",
	Long: `start takes the version-file lock in --data_dir, loads the latest
committed generation, joins the grid's Raft replication group when more
than one cluster server is configured, and runs the accept loop until
interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().String("metrics_addr", "127.0.0.1:9090", "address to serve /metrics on")
	startCmd.Flags().String("raft_bind_addr", "", "address to accept Raft RPCs on (required when cs_connectstring lists more than one peer)")
	startCmd.Flags().String("raft_data_dir", "", "directory for Raft log/stable/snapshot stores (defaults to <data_dir>/raft)")
}

func runStart(cmd *cobra.Command, args []string) error {
	dataDir, _ := rootCmd.PersistentFlags().GetString("data_dir")
	port, _ := rootCmd.PersistentFlags().GetInt("cs_port")
	listenAddr := fmt.Sprintf(":%d", port)
	numThreads, _ := rootCmd.PersistentFlags().GetInt("num_threads")
	metricsAddr, _ := cmd.Flags().GetString("metrics_addr")

	reg := registry.New()
	reg.Init(registry.DefaultRecords())

	rt := csserver.New(csserver.Config{
		Dir:         dataDir,
		ListenAddr:  listenAddr,
		NumWorkers:  numThreads,
		ProcessName: "ic-csd",
	}, reg)

	if err := rt.LoadExisting(); err != nil {
		return fmt.Errorf("load existing generation: %w", err)
	}

	connectString, _ := rootCmd.PersistentFlags().GetString("cs_connectstring")
	peers := parseConnectString(connectString)
	if len(peers) > 1 {
		group, err := joinReplication(cmd, rt, peers)
		if err != nil {
			return fmt.Errorf("join replication group: %w", err)
		}
		defer group.Shutdown()
		rt.JoinReplication(group)
	}

	collector := metrics.NewCollector(rt)
	collector.Start()
	defer collector.Stop()

	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil && err != http.ErrServerClosed {
			log.WithComponent("ic-csd").Warn().Err(err).Msg("metrics server error")
		}
	}()

	logger := log.WithComponent("ic-csd")
	logger.Info().Str("listen_addr", listenAddr).Str("metrics_addr", metricsAddr).
		Int("generation", rt.ConfigGeneration()).Msg("ic-csd starting")

	errCh := make(chan error, 1)
	go func() { errCh <- rt.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("accept loop exited")
		}
	}

	if err := rt.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	logger.Info().Msg("ic-csd stopped")
	return nil
}

func joinReplication(cmd *cobra.Command, rt *csserver.Runtime, peers []types.ClusterServerPeer) (*replication.Group, error) {
	bindAddr, _ := cmd.Flags().GetString("raft_bind_addr")
	if bindAddr == "" {
		return nil, fmt.Errorf("--raft_bind_addr is required when cs_connectstring lists more than one peer")
	}
	raftDataDir, _ := cmd.Flags().GetString("raft_data_dir")
	if raftDataDir == "" {
		baseDir, _ := rootCmd.PersistentFlags().GetString("data_dir")
		raftDataDir = baseDir + "/raft"
	}
	hostname, _ := rootCmd.PersistentFlags().GetString("cs_hostname")

	group, err := replication.NewGroup(replication.Config{
		NodeID:   replication.DisambiguateNodeID(hostname, hostnameCollides(hostname, peers)),
		BindAddr: bindAddr,
		DataDir:  raftDataDir,
	})
	if err != nil {
		return nil, err
	}
	if err := group.Bootstrap(peers, bindAddr); err != nil {
		return nil, err
	}
	return group, nil
}

func hostnameCollides(hostname string, peers []types.ClusterServerPeer) bool {
	count := 0
	for _, p := range peers {
		if p.Hostname == hostname {
			count++
		}
	}
	return count > 1
}

// parseConnectString parses a comma-separated hostname:port list (spec
// §6.5's cs_connectstring) into cluster-server peers. Node ids aren't
// carried by the connect string itself; peers are numbered in list order
// starting at 1, matching the original's implicit ordering convention.
func parseConnectString(s string) []types.ClusterServerPeer {
	if s == "" {
		return nil
	}
	var peers []types.ClusterServerPeer
	for i, part := range strings.Split(s, ",") {
		host, portStr, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		port := 0
		fmt.Sscanf(portStr, "%d", &port)
		peers = append(peers, types.ClusterServerPeer{NodeID: uint32(i + 1), Hostname: host, Port: port})
	}
	return peers
}
