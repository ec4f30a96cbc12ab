package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/csproto"
)

var clusterListCmd = &cobra.Command{
	Use:   "cluster-list",
	Short: "List the clusters a cluster server knows about",
	Long: `cluster-list sends "get cluster list" (spec §4.D), which only an
iclaustron-extended cluster server answers; run it with
--use_iclaustron_cluster_server=false against a classic cluster server
and it reports that the command isn't available.`,
	RunE: runClusterList,
}

func runClusterList(cmd *cobra.Command, args []string) error {
	version := protocolVersion()
	if version&csproto.IClaustronBit == 0 {
		return fmt.Errorf("cluster-list requires --use_iclaustron_cluster_server")
	}

	names, err := csproto.ListClusters(dialer(), endpoints())
	if err != nil {
		return fmt.Errorf("get cluster list: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("(no clusters configured)")
		return nil
	}
	for _, n := range names {
		fmt.Printf("%s\tid=%d\n", n.Name, n.ID)
	}
	return nil
}
