package main

import (
	"fmt"
	"io"

	"github.com/crosve/Csphere/internal/catalog"
	"github.com/spf13/cobra"
)

func newFoldersCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage smart folders",
	}
	cmd.AddCommand(newFoldersImportCmd(root))
	return cmd
}

func newFoldersImportCmd(root *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "import <file.toml>",
		Short: "Create or update folders from a TOML file",
		Long: `Create the folders defined in a TOML file for one user. Folders whose
name already exists are updated in place.

Example file:

  [[folder]]
  name = "Go"
  description = "Go language articles"
  keywords = ["golang", "goroutines"]
  url_patterns = ['go\.dev/']
  bucketing = true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{role: "folders", oracle: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.EnsureUser(cmd.Context(), userID); err != nil {
				return err
			}
			res, err := a.catalog.ImportPath(cmd.Context(), userID, args[0])
			if res != nil {
				printImport(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the imported folders")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printImport(w io.Writer, res *catalog.ImportResult) {
	for _, f := range res.Created {
		fmt.Fprintf(w, "created  %s  %s  (%s)\n", f.ID, f.Name, f.ProfileState)
	}
	for _, f := range res.Updated {
		fmt.Fprintf(w, "updated  %s  %s  (%s)\n", f.ID, f.Name, f.ProfileState)
	}
	fmt.Fprintf(w, "%d created, %d updated\n", len(res.Created), len(res.Updated))
}
