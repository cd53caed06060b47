// Command studygroup runs the study group API, its job workers and schema migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studygroup",
		Short: "Study group backend",
		Long: `Studygroup serves the study post and session API, runs the
conversation-analysis workers and applies database migrations.

Configuration is read from the environment (and .env when present).`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), workerCmd(), migrateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studygroup version %s\n", Version)
		},
	})

	return cmd
}

func serveCmd() *cobra.Command {
	var noWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and in-process workers unless disabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "Do not start the job worker pool in this process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the job worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}
