package cmds

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newUsageCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				history := a.ledger.History()
				if days > 0 && len(history) > days {
					history = history[len(history)-days:]
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
				fmt.Fprintln(w, "DATE\tINPUT\tOUTPUT\tTHINKING\tTOTAL\t")
				for _, d := range history {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", d.Date, d.InputTokens, d.OutputTokens, d.ThinkingTokens, d.TotalTokens)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Only show the last n days")
	return cmd
}
