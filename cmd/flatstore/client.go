package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"flatstore/pkg/client"
	"flatstore/pkg/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func clientCmd() *cobra.Command {
	var coordinatorAddress string

	newClient := func(cmd *cobra.Command) (*client.Client, *zap.Logger, error) {
		logger := setupLogger(verbose)

		cfg, err := loadConfig()
		if err != nil {
			return nil, logger, err
		}
		if cmd.Flags().Changed("coordinator") {
			cfg.Client.CoordinatorAddress = coordinatorAddress
		}
		if err := config.ValidateClient(&cfg.Client); err != nil {
			return nil, logger, err
		}

		c, err := client.New(&cfg.Client, logger)
		return c, logger, err
	}

	// runOne sends a single command and prints the reply like the REPL does.
	runOne := func(cmd *cobra.Command, do func(*client.Client) (client.Result, error)) error {
		c, logger, err := newClient(cmd)
		defer logger.Sync()
		if err != nil {
			return err
		}
		res, err := do(c)
		if err != nil {
			return err
		}
		client.PrintResult(os.Stdout, res)
		if !res.OK() {
			return fmt.Errorf("%s", res.Text)
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Interactive client",
		Long: `Start an interactive session against a coordinator. Commands:
  READ <path>
  WRITE <path> [data]
  LIST [path]
  EXIT | QUIT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := newClient(cmd)
			defer logger.Sync()
			if err != nil {
				return err
			}
			return client.NewSession(c, os.Stdin, os.Stdout).Run(context.Background())
		},
	}

	cmd.PersistentFlags().StringVar(&coordinatorAddress, "coordinator", "localhost"+config.DefaultCoordinatorAddress, "coordinator address")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "read <path>",
			Short: "Print a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOne(cmd, func(c *client.Client) (client.Result, error) {
					return c.Read(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "write <path> <data...>",
			Short: "Write a file",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOne(cmd, func(c *client.Client) (client.Result, error) {
					return c.Write(cmd.Context(), args[0], strings.Join(args[1:], " "))
				})
			},
		},
		&cobra.Command{
			Use:   "ls [path]",
			Short: "List a directory across all storage nodes",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := "/"
				if len(args) == 1 {
					path = args[0]
				}
				return runOne(cmd, func(c *client.Client) (client.Result, error) {
					return c.List(cmd.Context(), path)
				})
			},
		},
	)

	return cmd
}
