// Command appealctl is the operator tool for the appeal pipeline: it signs
// test webhooks, inspects and resumes intakes, and prints the city registry
// and database schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ticketfight/appeal-service/internal/config"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "appealctl",
		Short:         "Operate the ticket appeal pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_PATH"), "Path to config.yaml (env overrides still apply)")

	root.AddCommand(signCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(resumeCmd())
	root.AddCommand(verifyEmailCmd())
	root.AddCommand(citiesCmd())
	root.AddCommand(schemaCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadFromEnv(path)
}
