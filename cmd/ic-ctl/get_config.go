package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/configwire"
	"github.com/iClaustron/iclaustron-sub000/pkg/configstore"
	"github.com/iClaustron/iclaustron-sub000/pkg/csproto"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

var getConfigCmd = &cobra.Command{
	Use:   "get-config",
	Short: "Fetch and print a cluster's configuration",
	Long: `get-config runs get-nodeid/get-config (spec §4.D) against a
running cluster server for each --cluster named (all clusters if none
are named and --use_iclaustron_cluster_server is set), printing each
node's resolved parameters.

With --bootstrap-from, no cluster server is contacted: the named INI
file is parsed and printed directly, for inspecting a cluster's
configuration before it's ever been bootstrapped.`,
	RunE: runGetConfig,
}

func init() {
	getConfigCmd.Flags().StringArray("cluster", nil, "cluster name to fetch (repeatable; all clusters if omitted)")
	getConfigCmd.Flags().String("bootstrap-from", "", "parse this cluster INI file directly instead of contacting a cluster server")
}

func runGetConfig(cmd *cobra.Command, args []string) error {
	reg := registry.New()
	reg.Init(registry.DefaultRecords())

	if path, _ := cmd.Flags().GetString("bootstrap-from"); path != "" {
		return runGetConfigOffline(reg, path)
	}

	desired, _ := cmd.Flags().GetStringArray("cluster")
	requestedNodeID, _ := rootCmd.PersistentFlags().GetInt("node_id")
	nodeType := int(configwire.NodeTypeToWire(types.KindClient))

	results, err := csproto.GetCSConfig(reg, dialer(), endpoints(), requestedNodeID, protocolVersion(), nodeType, desired)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	ids := make([]uint32, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		r := results[id]
		fmt.Printf("cluster %q (id=%d), assigned node id %d:\n", r.Cluster.Name, r.Cluster.ID, r.AssignedNodeID)
		printNodes(r.Cluster)
	}
	return nil
}

func runGetConfigOffline(reg *registry.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bootstrap-from: %w", err)
	}
	cluster, err := configstore.LoadClusterFromINI(reg, data)
	if err != nil {
		return fmt.Errorf("bootstrap-from %s: %w", path, err)
	}
	fmt.Printf("cluster %q (parsed from %s, not yet bootstrapped):\n", cluster.Name, path)
	printNodes(cluster)
	return nil
}

func printNodes(c *types.ClusterConfig) {
	ids := make([]uint32, 0, len(c.Nodes))
	for id := range c.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := c.Nodes[id]
		fmt.Printf("  node %d [%s] %s\n", n.NodeID, n.Kind, n.Hostname)
	}
}
