// Package cmd is the exporter's command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/config"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/observability"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/runner"
)

const appName = "backoffice-csv-exporter"

type ctxKey struct{}

var configKey = ctxKey{}

// osExit is swapped out by tests of the watchdog.
var osExit = os.Exit

// flagKeys maps command-line flags onto configuration keys. Flags only
// override a key when they are set explicitly.
var flagKeys = map[string]string{
	"exec":             "browser.exec_path",
	"profile":          "browser.profile_dir",
	"headless":         "browser.headless",
	"download":         "output.download_dir",
	"out-dir":          "output.dir",
	"out-file":         "output.file",
	"trace":            "output.trace",
	"surface":          "surfaces",
	"interactive":      "session.interactive",
	"storage-file":     "session.storage_file",
	"budget":           "run.budget",
	"log-level":        "logger.level",
	"metrics-textfile": "metrics.textfile",
}

// NewRootCmd builds the command tree. Running the root command performs an
// export.
func NewRootCmd(version string) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           appName,
		Short:         "Exports the inventory CSV from the Loyverse back office.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting exporter", zap.String("version", version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: runExport,
	}

	fs := root.PersistentFlags()
	fs.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	fs.String("exec", "", "Browser executable (auto-detect if empty)")
	fs.String("profile", "", "Path to browser profile")
	fs.Bool("headless", true, "Run the browser without a window")
	fs.String("download", "", "Directory Chrome saves downloads into (temporary if empty)")
	fs.String("out-dir", "out", "Directory for the export and diagnostics")
	fs.String("out-file", "inventory.csv", "Export file name, relative to --out-dir")
	fs.String("trace", "", "Write a JSON trace of the run to this file")
	fs.StringSlice("surface", nil, "Surface URL to try, in order (repeatable)")
	fs.Bool("interactive", false, "Fall back to a manual login when no session is available")
	fs.String("storage-file", "out/storage.json", "Storage state file")
	fs.Duration("budget", 0, "Wall-clock budget for the whole run")
	fs.String("log-level", "info", "Log level")
	fs.String("metrics-textfile", "", "Write Prometheus metrics to this textfile")

	root.SetVersionTemplate(appName + " version {{.Version}}\n")
	root.AddCommand(newSessionCmd(), newConfigCmd())
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// configFrom returns the configuration loaded by the root command.
func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.NewDefaultConfig()
}

// Execute runs the command line with args and returns the process exit
// code.
func Execute(ctx context.Context, version string, args []string) int {
	root := NewRootCmd(version)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	defer observability.Sync()
	if err == nil {
		return runner.ExitOK
	}

	code := runner.ExitCode(err)
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Interrupted")
	} else {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return code
}
