package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ignatzorin/bounty-backend/internal/logger"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Один проход по просроченным заданиям и истёкшим бустам",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.sweeper.Sweep(ctx)
		if err != nil {
			return err
		}

		logger.WithComponent("sweep").WithFields(logrus.Fields{
			"scanned":      report.Scanned,
			"expired":      report.Expired,
			"failed":       report.Failed,
			"boosts_reset": report.BoostsReset,
			"skipped":      report.Skipped,
		}).Info("sweep completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
