package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/configwire"
	"github.com/iClaustron/iclaustron-sub000/pkg/csproto"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

var nodeIDCmd = &cobra.Command{
	Use:   "nodeid",
	Short: "Request a node id for one cluster",
	Long: `nodeid runs get-nodeid/get-config (spec §4.D) against --cluster
and prints the node id the cluster server assigned, without printing the
rest of the configuration.`,
	RunE: runNodeID,
}

func init() {
	nodeIDCmd.Flags().String("cluster", "", "cluster name to request a node id in (required unless --use_iclaustron_cluster_server=false)")
}

func runNodeID(cmd *cobra.Command, args []string) error {
	reg := registry.New()
	reg.Init(registry.DefaultRecords())

	cluster, _ := cmd.Flags().GetString("cluster")
	var desired []string
	if cluster != "" {
		desired = []string{cluster}
	}

	requestedNodeID, _ := rootCmd.PersistentFlags().GetInt("node_id")

	nodeType := int(configwire.NodeTypeToWire(types.KindClient))
	results, err := csproto.GetCSConfig(reg, dialer(), endpoints(), requestedNodeID, protocolVersion(), nodeType, desired)
	if err != nil {
		return fmt.Errorf("get nodeid: %w", err)
	}
	for _, r := range results {
		fmt.Printf("cluster %q (id=%d): assigned node id %d\n", r.Cluster.Name, r.Cluster.ID, r.AssignedNodeID)
	}
	return nil
}
