package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitewarden/internal/config"
	"sitewarden/internal/logger"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v   *viper.Viper
	cfg config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "sitewarden",
		Short:         "Website security scan orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				a.v.SetConfigFile(cfgFile)
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logger)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML config file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.String("db-driver", "postgres", "storage driver (postgres, sqlite)")
	flags.String("database-url", "", "postgres connection string")
	flags.String("sqlite-path", "sitewarden.db", "sqlite database file")
	for key, flag := range map[string]string{
		"logger.level":         "log-level",
		"logger.format":        "log-format",
		"database.driver":      "db-driver",
		"database.url":         "database-url",
		"database.sqlite_path": "sqlite-path",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newServeCmd(a), newScanCmd(a), newMigrateCmd(a))
	return root
}
