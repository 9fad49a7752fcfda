package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/store"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Install the notification functions and triggers, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := store.ProvisionOptions{
			Channels:        cfg.Channels,
			CompletionField: cfg.CompletionField,
		}
		if err := store.ProvisionOnce(cmd.Context(), cfg.ConnString(), opts); err != nil {
			slog.Error("provisioning failed", "error", err)
			return err
		}
		slog.Info("provisioning complete", "channels", cfg.Channels)
		return nil
	},
}
