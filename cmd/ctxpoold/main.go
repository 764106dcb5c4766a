package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ashcrew/ctxpoold/internal/config"
	"github.com/ashcrew/ctxpoold/internal/logging"
	"github.com/ashcrew/ctxpoold/internal/supervisor"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	configFile  string
	verbose     bool
	logLevel    string
	maxContexts int
	listenAddr  string
)

var rootCmd = &cobra.Command{
	Use:     "ctxpoold",
	Short:   "Browser context pool service",
	Long:    `ctxpoold multiplexes scrape requests onto a bounded set of isolated browser contexts behind one browser process.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg.MergeFlags(logLevel, maxContexts, listenAddr)

		logCfg := logging.Config{
			Level:      cfg.Logging.Level,
			LogDir:     cfg.Logging.LogDir,
			MaxSize:    cfg.Logging.Rotation.MaxSize,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			Compress:   cfg.Logging.Rotation.Compress,
		}
		if err := logging.Init(logCfg); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		if verbose {
			logging.Info("verbose mode enabled")
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool service until a shutdown signal is received",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg.MergeFlags(logLevel, maxContexts, listenAddr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sup := supervisor.New(cfg)
		return sup.Run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ctxpoold %s\n", Version)
		fmt.Printf("built: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace|debug|info|warn|error)")

	serveCmd.Flags().IntVar(&maxContexts, "max-contexts", 0, "override pool.max_contexts")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "override api.listen_addr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
