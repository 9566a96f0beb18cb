package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue <fingerprint>",
	Short: "Return a failed record to its resume point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Requeue(cmd.Context(), args[0]); err != nil {
			return err
		}

		zap.L().Info("record requeued", zap.String("fingerprint", args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}
