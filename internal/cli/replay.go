package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tapedeck/pkg/client"
)

func newReplayCmd() *cobra.Command {
	var (
		proxyURL   string
		index      int
		last       bool
		prettyJSON bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "replay [ID]",
		Short: "Replay a recorded exchange against the current upstream",
		Long: `Asks a running proxy to re-issue a recorded request against its current
upstream. The upstream's answer, whatever its status, is recorded as a new
history entry and printed.

A failure inside the proxy itself is reported with its traceback and makes
the command fail; an upstream error status does not.`,
		Example: `  tapedeck replay 6f1c2b9e-1f4e-4b36-9d0c-2b1d9c7c1a77
  tapedeck replay --index 3
  tapedeck replay --last --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selectors := 0
			if len(args) == 1 {
				selectors++
			}
			if cmd.Flags().Changed("index") {
				selectors++
			}
			if last {
				selectors++
			}
			if selectors != 1 {
				return errors.New("exactly one of ID, --index or --last is required")
			}

			c := client.New(proxyURL)
			ctx := cmd.Context()

			var (
				res *client.ReplayResult
				err error
			)
			switch {
			case len(args) == 1:
				res, err = c.Replay(ctx, args[0])
			case last:
				var e client.Entry
				if e, err = c.Last(ctx); err == nil {
					res, err = c.Replay(ctx, e.ID)
				}
			default:
				res, err = c.ReplayIndex(ctx, index)
			}

			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Traceback != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), apiErr.Traceback)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, res.Entry)
			}
			fmt.Fprintf(out, "Replayed %s as %s: upstream responded %d\n\n", res.ReplayOf, res.Entry.ID, res.StatusCode)
			fmt.Fprint(out, render(res.Entry, prettyJSON))
			return nil
		},
	}

	cmd.Flags().StringVar(&proxyURL, "proxy", defaultProxyURL, "base URL of the running proxy")
	cmd.Flags().IntVar(&index, "index", 0, "replay the entry at this zero-based position")
	cmd.Flags().BoolVar(&last, "last", false, "replay the most recent entry")
	cmd.Flags().BoolVar(&prettyJSON, "pretty", false, "reindent JSON bodies")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the new entry as JSON")

	return cmd
}
