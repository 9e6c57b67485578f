package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/browserbase-control/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type rootOptions struct {
	envFile  string
	port     string
	logLevel string
	logDev   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "browser-control",
		Short:        "Remote browser control plane",
		Long:         "browser-control launches and brokers remote browser sessions for simulation campaigns, streams them to operators and records what the simulated targets submit.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment")
	flags.StringVar(&opts.port, "port", "", "listen port (overrides PORT)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.BoolVar(&opts.logDev, "dev", false, "human-readable development logging (overrides LOG_DEV)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRecordsCmd(opts),
	)
	return rootCmd
}

// load reads configuration from the environment, then applies explicitly set flags
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = o.logDev
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
