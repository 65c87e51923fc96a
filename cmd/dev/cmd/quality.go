package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests against the simulated sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Lint the driver, cli and dev tool sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// HardwareTestCmd runs the integration-tagged tests, which drive a real
// BH1750 through the memory-mapped GPIO bank and need root on the board.
func HardwareTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hw-test",
		Aliases: []string{"integration-test"},
		Short:   "Run hardware tests on the target board",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("running hardware tests", "config", os.Getenv("LUX_CONFIG"))
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run hardware tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// CheckCmd lints and then tests, stopping at the first failure.
func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run linting and unit tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			slog.Info("all checks passed")
			return nil
		},
	}
	return cmd
}
