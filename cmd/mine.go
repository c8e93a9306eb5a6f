package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mineAddress string

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine one block on the persisted chain and exit",
	Long: "Mine one block on top of the persisted chain. Pending transactions are not " +
		"persisted, so the block holds no transactions; it still extends the chain by one.",
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := n.ledger.MinePendingTransactions(ctx, mineAddress)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mined block %d hash=%s nonce=%d\n", b.Index, b.Hash, b.Nonce)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.Flags().StringVarP(&mineAddress, "miner", "m", "", "Address credited with the mining reward")
	_ = mineCmd.MarkFlagRequired("miner")
}
