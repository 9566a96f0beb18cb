package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull new Q&A log records into the enrichment store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.newSyncer().Sync(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		fields := []zap.Field{
			zap.Int("scanned", report.Scanned),
			zap.Int("inserted", report.Inserted),
			zap.Int("skipped_duplicate", report.SkippedDuplicate),
			zap.Int("skipped_invalid", report.SkippedInvalid),
		}
		if report.Watermark != nil {
			fields = append(fields, zap.Time("watermark", *report.Watermark))
		}
		zap.L().Info("sync complete", fields...)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
