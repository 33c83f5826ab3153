package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flatstore/pkg/config"
	"flatstore/pkg/coordinator"
	"flatstore/pkg/node"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flatstore",
		Short: "Flat distributed file store",
		Long: `A small distributed file store. A coordinator tracks which storage node
owns each file and routes client READ, WRITE and LIST commands to it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		coordinatorCmd(),
		nodeCmd(),
		clientCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given, otherwise FLATSTORE_* variables.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.LoadFromEnv(), nil
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// onShutdown runs stop once on SIGINT or SIGTERM.
func onShutdown(logger *zap.Logger, what string, stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Shutting down "+what, zap.String("signal", sig.String()))
		stop()
	}()
}

func coordinatorCmd() *cobra.Command {
	var (
		address       string
		placement     string
		dedupeNodes   bool
		healthAddress string
	)

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the coordinator",
		Long:  `Start a coordinator that registers storage nodes and routes client commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("address") {
				cfg.Coordinator.Address = address
			}
			if flags.Changed("placement") {
				cfg.Coordinator.Placement = placement
			}
			if flags.Changed("dedupe-nodes") {
				cfg.Coordinator.DedupeNodes = dedupeNodes
			}
			if flags.Changed("health-address") {
				cfg.Coordinator.HealthAddress = healthAddress
			}

			if err := config.ValidateCoordinator(&cfg.Coordinator); err != nil {
				return err
			}

			coord, err := coordinator.New(&cfg.Coordinator, logger)
			if err != nil {
				return fmt.Errorf("failed to create coordinator: %w", err)
			}

			onShutdown(logger, "coordinator", coord.Stop)

			logger.Info("Starting coordinator", zap.String("address", cfg.Coordinator.Address))
			return coord.Start()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", config.DefaultCoordinatorAddress, "listen address")
	cmd.Flags().StringVar(&placement, "placement", config.DefaultPlacement,
		"placement policy for new files (first-available, round-robin, least-loaded, hash)")
	cmd.Flags().BoolVar(&dedupeNodes, "dedupe-nodes", false, "treat re-registration of a known node as an update")
	cmd.Flags().StringVar(&healthAddress, "health-address", "", "gRPC health check address (disabled when empty)")

	return cmd
}

func nodeCmd() *cobra.Command {
	var (
		address            string
		advertiseHost      string
		coordinatorAddress string
		rootDir            string
		healthAddress      string
	)

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a storage node",
		Long: `Start a storage node that registers with a coordinator, reports the files
under its root directory and serves READ, WRITE and LIST commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("address") {
				cfg.Node.Address = address
			}
			if flags.Changed("advertise-host") {
				cfg.Node.AdvertiseHost = advertiseHost
			}
			if flags.Changed("coordinator") {
				cfg.Node.CoordinatorAddress = coordinatorAddress
			}
			if flags.Changed("root") {
				cfg.Node.RootDir = rootDir
			}
			if flags.Changed("health-address") {
				cfg.Node.HealthAddress = healthAddress
			}

			if err := config.ValidateNode(&cfg.Node); err != nil {
				return err
			}

			storageNode, err := node.New(&cfg.Node, logger)
			if err != nil {
				return fmt.Errorf("failed to create storage node: %w", err)
			}

			onShutdown(logger, "storage node", storageNode.Stop)

			logger.Info("Starting storage node",
				zap.String("address", cfg.Node.Address),
				zap.Stringer("advertise", storageNode.Self()),
				zap.String("coordinator", cfg.Node.CoordinatorAddress))
			return storageNode.Start()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", config.DefaultNodeAddress, "listen address (explicit port required)")
	cmd.Flags().StringVar(&advertiseHost, "advertise-host", config.DefaultAdvertiseHost, "host reported to the coordinator")
	cmd.Flags().StringVar(&coordinatorAddress, "coordinator", "localhost"+config.DefaultCoordinatorAddress, "coordinator address")
	cmd.Flags().StringVarP(&rootDir, "root", "r", "./data", "root directory for stored files")
	cmd.Flags().StringVar(&healthAddress, "health-address", "", "gRPC health check address (disabled when empty)")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("flatstore v0.1.0")
		},
	}
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := config.Build()
	return logger
}
