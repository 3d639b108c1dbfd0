package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/open-edge-platform/sdk-provisioner/internal/config"
	_ "github.com/open-edge-platform/sdk-provisioner/internal/provider/cuda"
	_ "github.com/open-edge-platform/sdk-provisioner/internal/provider/cudnn"
	_ "github.com/open-edge-platform/sdk-provisioner/internal/provider/openvino"
	_ "github.com/open-edge-platform/sdk-provisioner/internal/provider/tensorrt"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// Global flags
var (
	configFile string
	logLevel   string
	verbose    bool
)

// globalConfig is loaded by the logging hook before any subcommand runs.
var globalConfig = config.DefaultGlobalConfig()

const envPrefix = "SDKPROV_"

// Exit codes by failure kind.
const (
	exitFailure           = 1
	exitSourceUnavailable = 2
	exitStructureMismatch = 3
	exitVerificationGap   = 4
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := createRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// createRootCommand builds the command tree.
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sdk-provisioner",
		Short: "Download and install acceleration SDKs for native builds",
		Long: `sdk-provisioner fetches the GPU compute toolkit, deep-learning primitives,
inference-acceleration library and hardware-acceleration runtime an inference
engine build needs, installs each into its canonical root and checks that the
expected headers and libraries are in place.

Licensed archives are taken from CUDNN_DOWNLOAD_URL and TENSORRT_DOWNLOAD_URL
when set. Every flag can also be given as an SDKPROV_<FLAG> environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to a YAML, TOML or JSON configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Shorthand for --log-level=debug")

	rootCmd.AddCommand(createInstallCommand())
	rootCmd.AddCommand(createResolveCommand())
	rootCmd.AddCommand(createVerifyCommand())
	rootCmd.AddCommand(createValidateCommand())
	rootCmd.AddCommand(createEnvCommand())

	attachLoggingHooks(rootCmd)
	return rootCmd
}

// attachLoggingHooks gives every subcommand a pre-run that applies
// environment defaults, loads the config and initialises logging.
func attachLoggingHooks(root *cobra.Command) {
	for _, sub := range root.Commands() {
		sub.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
			if err := bindEnvToFlags(cmd.Flags(), os.LookupEnv); err != nil {
				return err
			}

			cfg, err := config.LoadGlobalConfig(configFile)
			if err != nil {
				return err
			}
			globalConfig = cfg

			level := resolveRequestedLogLevel(cmd)
			if level == "" {
				level = cfg.Logging.Level
			}
			return logger.Init(level)
		}
	}
}

// resolveRequestedLogLevel returns the level asked for on the command line,
// or "" to defer to the config.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		if on, err := cmd.Flags().GetBool("verbose"); err == nil && on {
			return "debug"
		}
	}
	return ""
}

// bindEnvToFlags fills flags not given on the command line from
// SDKPROV_<NAME> variables, e.g. SDKPROV_LOG_LEVEL for --log-level.
func bindEnvToFlags(fs *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := lookup(name)
		if !ok {
			return
		}
		if sv, isSlice := f.Value.(pflag.SliceValue); isSlice {
			if err := sv.Replace(splitList(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			f.Changed = true
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, sdkpackage.ErrSourceUnavailable):
		return exitSourceUnavailable
	case errors.Is(err, sdkpackage.ErrStructureMismatch):
		return exitStructureMismatch
	case errors.Is(err, sdkpackage.ErrVerificationGap):
		return exitVerificationGap
	default:
		return exitFailure
	}
}
