package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mezonai/votechain/jsonx"
)

var verifyJSON bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-validate the persisted chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		n, err := openNode(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		st := n.ledger.Status()
		out := cmd.OutOrStdout()
		if verifyJSON {
			data, err := jsonx.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			if !st.Valid {
				return fmt.Errorf("chain is invalid: %w", n.ledger.ValidateChain())
			}
			return nil
		}

		fmt.Fprintf(out, "height:      %d\n", st.Height)
		fmt.Fprintf(out, "latest hash: %s\n", st.LatestHash)
		if err := n.ledger.ValidateChain(); err != nil {
			fmt.Fprintf(out, "valid:       false (%v)\n", err)
			return fmt.Errorf("chain is invalid: %w", err)
		}
		fmt.Fprintln(out, "valid:       true")
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the chain status as JSON")
	rootCmd.AddCommand(verifyCmd)
}
