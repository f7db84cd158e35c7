package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/crosve/Csphere/internal/matcher"
	"github.com/spf13/cobra"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	chosenStyle  = cellStyle.Foreground(lipgloss.Color("46")).Bold(true)
	skippedStyle = cellStyle.Foreground(lipgloss.Color("240"))
)

type explainOptions struct {
	userID    string
	contentID string
	url       string
	text      string
	asJSON    bool
}

func newExplainCmd(root *rootOptions) *cobra.Command {
	opts := &explainOptions{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show how content would be filed, without filing it",
		Long: `Recall and score the user's folders for a piece of content and print
every candidate's score breakdown. Either --content names stored content,
or --text (with an optional --url) is embedded on the fly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.contentID == "" && opts.text == "" {
				return fmt.Errorf("one of --content or --text is required")
			}
			a, err := newApp(cmd.Context(), root, appOptions{role: "explain", oracle: opts.contentID == ""})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var ex *matcher.Explanation
			if opts.contentID != "" {
				ex, err = a.matcher.ExplainContent(ctx, opts.userID, opts.contentID)
			} else {
				var vec []float64
				vec, err = a.embedder.Embed(ctx, a.scrubber.ScrubText(opts.text))
				if err != nil {
					return fmt.Errorf("embedding text: %w", err)
				}
				ex, err = a.matcher.Explain(ctx, opts.userID, vec, opts.text, opts.url)
			}
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ex)
			}
			renderExplanation(cmd.OutOrStdout(), ex)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "user whose folders are considered")
	cmd.Flags().StringVar(&opts.contentID, "content", "", "stored content id")
	cmd.Flags().StringVar(&opts.url, "url", "", "page URL, used for URL patterns")
	cmd.Flags().StringVar(&opts.text, "text", "", "page text to embed")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the explanation as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func renderExplanation(w io.Writer, ex *matcher.Explanation) {
	chosen := ""
	if ex.Result.FolderID != nil {
		chosen = *ex.Result.FolderID
	}

	rows := make([][]string, 0, len(ex.Candidates))
	for _, c := range ex.Candidates {
		note := ""
		switch {
		case c.PatternMatched:
			note = "pattern " + c.Pattern
		case c.Skipped:
			note = c.SkipReason
		}
		rows = append(rows, []string{
			c.FolderName,
			fmt.Sprintf("%.3f", c.Similarity),
			fmt.Sprintf("%.2f", c.Keyword),
			fmt.Sprintf("%.2f", c.Fuzzy),
			fmt.Sprintf("%.2f", c.Semantic),
			fmt.Sprintf("%.2f", c.Total),
			note,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers("FOLDER", "SIM", "KEYWORD", "FUZZY", "SEMANTIC", "TOTAL", "NOTE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			c := ex.Candidates[row]
			switch {
			case c.FolderID == chosen:
				return chosenStyle
			case c.Skipped:
				return skippedStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
	if ex.Result.Matched {
		fmt.Fprintf(w, "match: %s (%s, score %.2f, threshold %.2f)\n", chosen, ex.Result.Reason, ex.Result.Score, ex.Threshold)
		return
	}
	fmt.Fprintf(w, "no match: %s (threshold %.2f)\n", ex.Result.Reason, ex.Threshold)
}
