package cmds

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect and change session statuses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <session>",
		Short: "List statuses and triggers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				s, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tVALUE\tMODE\tVISIBLE")
				for _, st := range s.CustomStatuses {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", st.ID, st.Name, st.CurrentValue, st.Mode, st.Visible)
				}
				if len(s.Triggers) > 0 {
					fmt.Fprintln(w, "\nTRIGGER\tEXECUTION\tEXECUTED\tLAST RESULT")
					for _, t := range s.Triggers {
						fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", t.ID, t.ExecutionType, t.HasBeenExecuted, t.LastEvaluationResult)
					}
				}
				return w.Flush()
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <session> <status-id> <value>",
		Short: "Change a status, accumulating statuses add numeric values",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				s, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				if err := a.service.UpdateStatus(cmd.Context(), s, args[1], args[2]); err != nil {
					return err
				}
				if st, ok := s.CustomStatuses.Find(args[1]); ok {
					fmt.Printf("%s: %s\n", st.Name, st.CurrentValue)
				}
				return nil
			})
		},
	})
	return cmd
}
