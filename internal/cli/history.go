package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/cursor"
	"github.com/SmitUplenchwar2687/Tapedeck/pkg/client"
)

const defaultProxyURL = "http://localhost:5000"

func newHistoryCmd() *cobra.Command {
	var (
		proxyURL   string
		limit      int
		after      string
		before     string
		unique     bool
		all        bool
		prettyJSON bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show exchanges recorded by a running proxy",
		Long: `Fetches recorded exchanges from a running proxy and prints each one as
raw HTTP request and response text.

Pages are walked with the cursors printed after each page. --unique drops
exchanges that are byte-identical to an earlier one on the same page.`,
		Example: `  tapedeck history
  tapedeck history --limit 5 --after MTQ=
  tapedeck history --all --unique --pretty
  tapedeck history --proxy http://localhost:9000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(proxyURL)
			out := cmd.OutOrStdout()

			if all {
				entries, err := c.All(cmd.Context(), unique)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(out, entries)
				}
				printEntries(out, entries, 0, !unique, prettyJSON)
				return nil
			}

			q := client.Query{Limit: limit, After: after, Before: before, Unique: unique}
			page, err := c.History(cmd.Context(), q)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(out, map[string]any{
					"history":  page.History,
					"next":     page.Next,
					"previous": page.Previous,
					"limit":    page.Limit,
				})
			}

			offset, _, err := cursor.Resolve(cursor.Query{Limit: page.Limit, After: after, Before: before})
			printEntries(out, page.History, offset, err == nil && !unique, prettyJSON)
			if len(page.History) == 0 {
				fmt.Fprintln(out, "No recorded exchanges.")
			}
			if page.Previous != "" {
				fmt.Fprintf(out, "previous: %s\n", page.Previous)
			}
			if page.Next != "" {
				fmt.Fprintf(out, "next:     %s\n", page.Next)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&proxyURL, "proxy", defaultProxyURL, "base URL of the running proxy")
	cmd.Flags().IntVar(&limit, "limit", cursor.DefaultLimit, "entries per page")
	cmd.Flags().StringVar(&after, "after", "", "cursor: show the page after this position")
	cmd.Flags().StringVar(&before, "before", "", "cursor: show the page before this position")
	cmd.Flags().BoolVar(&unique, "unique", false, "drop duplicate exchanges within a page")
	cmd.Flags().BoolVar(&all, "all", false, "walk every page")
	cmd.Flags().BoolVar(&prettyJSON, "pretty", false, "reindent JSON bodies")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output entries as JSON")

	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
