// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnreport/internal/config"
	"github.com/xkilldash9x/vulnreport/internal/observability"
)

type contextKey string

// configKey stores the validated config.Interface on the command context.
const configKey contextKey = "config"

// rootOptions holds the flag values of one root command instance.
type rootOptions struct {
	cfgFile     string
	envFile     string
	outputPath  string
	title       string
	concurrency int
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state, so tests and repeated executions never share values.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "vulnreport [flags] [--] <input.csv> [more.csv...]",
		Short: "Turn vulnerability scanner CSV exports into assessment reports.",
		Long: `vulnreport reads a scanner export (Nessus, OpenVAS and similar CSV dialects),
collapses repeated rows into unique findings with their affected hosts, orders
them by severity and writes a DOCX report next to the input.

Arguments after "--" are always treated as input files, so an input named
like a subcommand can be given as "vulnreport -- version".`,
		Version:       Version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, opts.cfgFile, opts.envFile); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting vulnreport", zap.String("version", Version))

			ctx := context.WithValue(cmd.Context(), configKey, config.Interface(cfg))
			cmd.SetContext(ctx)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("title") {
				cfg.SetReportTitle(opts.title)
			}
			if cmd.Flags().Changed("concurrency") {
				if opts.concurrency < 1 {
					return fmt.Errorf("--concurrency must be a positive integer, got %d", opts.concurrency)
				}
				cfg.SetReportConcurrency(opts.concurrency)
			}

			return runReport(ctx, logger, cfg, args, opts.outputPath, cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file with VULNREPORT_* variables (default is ./.env if present)")
	rootCmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path. Only valid with a single input; defaults to the input path with a .docx extension.")
	rootCmd.Flags().StringVarP(&opts.title, "title", "t", "", "Report title (overrides report.title)")
	rootCmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "Number of inputs processed at once (overrides report.concurrency)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with the process arguments.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig loads the optional dotenv file, then the config file and
// VULNREPORT_* environment variables into v.
func initializeConfig(v *viper.Viper, cfgFile, envFile string) error {
	if envFile != "" {
		path, err := homedir.Expand(envFile)
		if err != nil {
			return fmt.Errorf("error expanding env file path: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("error loading env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env: %w", err)
	}

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("error expanding config path: %w", err)
		}
		// An explicitly named config file must exist.
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VULNREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// getConfigFromContext returns the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}

// exitCode maps an execution error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// Main runs the CLI and returns the process exit status.
func Main(ctx context.Context) int {
	defer observability.Sync()
	err := Execute(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}
