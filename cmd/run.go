package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/answerlab/qaeval/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run [classify|generate|score]",
	Short: "Run one pipeline phase over a single batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, ok := model.ParsePhase(args[0])
		if !ok {
			return eris.Errorf("unknown phase %q", args[0])
		}

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Pipeline.RunPhase(cmd.Context(), phase)
		if err != nil {
			return err
		}

		zap.L().Info("phase run complete",
			zap.String("phase", string(report.Phase)),
			zap.Int("processed", report.Processed),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
