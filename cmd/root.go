package cmd

import (
	"os"

	"github.com/mezonai/votechain/logx"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "votechain",
	Short: "Votechain ledger node CLI",
	Long:  "Command line interface for running and inspecting a proof-of-work vote ledger.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/votechain.yml", "Path to the YAML or INI config file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
