package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [lux args]",
		Short: "Run the lux cli against the simulated sensor",
		Long: `Run the lux cli from source with the simulated backend, so the whole
stack can be exercised without a board.

Examples:
  # Print one reading
  dev run read

  # Watch the value every 500ms
  dev run watch --every 500ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := cmd.Flags().GetString("backend")
			if err != nil {
				return fmt.Errorf("could not get backend flag: %w", err)
			}
			if len(args) == 0 {
				args = []string{"read"}
			}
			runArgs := append([]string{"run", "./cmd/lux", "--backend", backend, "--verbose"}, args...)
			slog.Info("Running lux", "args", runArgs)
			goRun := exec.CommandContext(cmd.Context(), "go", runArgs...)
			goRun.Stdin = os.Stdin
			goRun.Stdout = os.Stdout
			goRun.Stderr = os.Stderr
			if err := goRun.Run(); err != nil {
				return fmt.Errorf("lux exited: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("backend", "sim", "pin backend passed to lux")
	cmd.Flags().SetInterspersed(false)
	return cmd
}
