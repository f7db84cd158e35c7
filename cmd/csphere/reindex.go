package main

import (
	"fmt"

	"github.com/crosve/Csphere/internal/vectorstore"
	"github.com/spf13/cobra"
)

func newReindexCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the folder index from the database",
		Long: `Upsert every folder with a profile and bucketing enabled into the
configured vector store. Run it after switching vectorstore.provider or
after restoring the database from a backup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{role: "reindex"})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := vectorstore.Reindex(cmd.Context(), a.index, a.store, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d folders into %s\n", n, a.cfg.VectorStore.Provider)
			return nil
		},
	}
}
