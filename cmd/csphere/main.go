// Csphere files saved bookmarks into smart folders.
//
// The serve command runs the ingestion worker and the operational HTTP API.
// The remaining commands are one-shot maintenance tools against the same
// configuration.
//
// Usage:
//
//	# Run the worker and API
//	csphere serve --config csphere.yaml
//
//	# Rebuild the folder index after switching vector store
//	csphere reindex
//
//	# Show how a page would be filed
//	csphere explain --user u1 --url https://go.dev/blog --text "go generics"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "csphere",
		Short:         "Smart-folder matching for saved bookmarks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (env CSPHERE_* overrides)")

	root.AddCommand(
		newServeCmd(opts),
		newReindexCmd(opts),
		newFoldersCmd(opts),
		newExplainCmd(opts),
		newEnqueueCmd(opts),
		newProfilesCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "csphere\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
