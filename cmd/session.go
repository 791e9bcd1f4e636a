package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/auth"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/browser"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/observability"
)

func newSessionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored back-office session",
	}
	c.AddCommand(newSessionCaptureCmd(), newSessionEncodeCmd())
	return c
}

func newSessionCaptureCmd() *cobra.Command {
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "capture",
		Short: "Log in by hand in a browser window and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			logger := observability.GetLogger()
			if cfg.Session.StorageFile == "" {
				return errors.New("session.storage_file is required")
			}

			bopts := cfg.BrowserOptions()
			bopts.Headless = false
			b, err := browser.New(bopts, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			state, err := auth.Interactive(cmd.Context(), b, cfg.Session.LoginURL, timeout, logger)
			if err != nil {
				return err
			}
			if err := auth.Save(cfg.Session.StorageFile, state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s (%d cookies, %d origins)\n",
				cfg.Session.StorageFile, len(state.Cookies), len(state.Origins))
			return nil
		},
	}
	c.Flags().DurationVar(&timeout, "timeout", auth.LoginTimeout, "How long to wait for the login to finish")
	return c
}

func newSessionEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [file]",
		Short: "Print a storage state file as base64 for LOYVERSE_STORAGE_B64",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFrom(cmd.Context()).Session.StorageFile
			if len(args) == 1 {
				path = args[0]
			}
			encoded, err := auth.EncodeFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
}
