package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iClaustron/iclaustron-sub000/pkg/configstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the committed generation and lock state of --data_dir",
	Long: `status reads config.version directly out of --data_dir without
taking the ownership lock, so it's safe to run against a data directory
an "ic-csd start" process already owns.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	dataDir, _ := rootCmd.PersistentFlags().GetString("data_dir")

	version, state, pid, err := configstore.ReadVersion(dataDir)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	if version == 0 {
		fmt.Printf("%s: no committed generation (not yet bootstrapped)\n", dataDir)
		return nil
	}

	fmt.Printf("%s: generation %d, state %s, owner pid %d\n", dataDir, version, state, pid)
	return nil
}
