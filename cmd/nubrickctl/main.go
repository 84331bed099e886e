// Package main provides nubrickctl, a developer CLI for the Nubrick SDK:
// resolve catalogs offline, fetch live content, and inspect configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "nubrickctl",
		Short: "Developer tooling for the Nubrick experimentation SDK",
		Long: `nubrickctl resolves experiment catalogs the way the SDK does, fetches
live content from a project's CDN, and prints the configuration schema.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		buildResolveCmd(),
		buildEmbeddingCmd(),
		buildRemoteConfigCmd(),
		buildDispatchCmd(),
		buildSchemaCmd(),
		buildVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nubrickctl %s (%s)\n", version, commit)
		},
	}
}
