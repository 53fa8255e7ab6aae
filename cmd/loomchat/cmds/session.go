package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-go-golems/loomchat/pkg/goodwill"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/status"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage chat sessions",
	}
	cmd.AddCommand(
		newSessionNewCommand(),
		newSessionListCommand(),
		newSessionShowCommand(),
		newSessionTreeCommand(),
		newSessionDeleteCommand(),
		newSessionConfigureCommand(),
	)
	return cmd
}

func newSessionNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an empty session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				s, err := a.sessions.Create(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(s.ID)
				return nil
			})
		},
	}
}

func newSessionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tMODE\tUPDATED")
				for _, s := range a.sessions.List() {
					n := 0
					if s.Tree != nil {
						n = s.Tree.Len()
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", shortID(s.ID), s.Title, n,
						s.Features.APIMode, s.LastUpdatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}

func newSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Print the active conversation of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				s, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("# %s (%s)\n\n", s.Title, s.ID)
				printActivePath(os.Stdout, s)
				printSessionState(s)
				return nil
			})
		},
	}
}

func printSessionState(s *session.Session) {
	for _, st := range s.CustomStatuses {
		if st.Visible {
			fmt.Printf("%s: %s\n", st.Name, st.CurrentValue)
		}
	}
	if g := s.Features.Goodwill; g != nil && s.Features.APIMode.UsesFunctionCalling() {
		fmt.Printf("goodwill: %g\n", g.CurrentValue)
	}
	if inv := s.Features.Inventory; inv != nil && inv.Enabled {
		for _, item := range inv.Items {
			fmt.Printf("item %s x%d\n", item.Name, item.Quantity)
		}
	}
}

func newSessionTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <session>",
		Short: "Print every branch of a session, * marks the active path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				s, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				if s.Tree == nil {
					fmt.Println("(empty)")
					return nil
				}
				printTree(os.Stdout, s.Tree)
				return nil
			})
		},
	}
}

func newSessionDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				s, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				return a.sessions.Delete(cmd.Context(), s.ID)
			})
		},
	}
}

// sessionConfig is the part of a session that can be loaded from a file. Absent fields
// leave the session unchanged.
type sessionConfig struct {
	Title            *string                   `json:"title"`
	HideFirstMessage *bool                     `json:"hideFirstMessage"`
	CustomStatuses   *status.Statuses          `json:"customStatuses"`
	Triggers         *[]status.Trigger         `json:"triggers"`
	DiceRolls        *[]prompt.DiceRoll        `json:"diceRolls"`
	APIMode          *session.APIMode          `json:"apiMode"`
	Goodwill         *goodwill.Feature         `json:"goodwill"`
	Inventory        *session.InventoryFeature `json:"inventory"`
}

// loadSessionConfig reads a YAML (or JSON) file. The document is decoded generically and
// re-encoded as JSON so that the JSON field names and enum validation apply.
func loadSessionConfig(path string) (*sessionConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	j, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "convert %s", path)
	}
	ret := &sessionConfig{}
	if err := json.Unmarshal(j, ret); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return ret, nil
}

func (c *sessionConfig) applyTo(s *session.Session) {
	if c.Title != nil {
		s.Title = *c.Title
	}
	if c.HideFirstMessage != nil {
		s.HideFirstMessage = *c.HideFirstMessage
	}
	if c.CustomStatuses != nil {
		s.CustomStatuses = *c.CustomStatuses
	}
	if c.Triggers != nil {
		s.Triggers = *c.Triggers
	}
	if c.DiceRolls != nil {
		s.DiceRolls = *c.DiceRolls
	}
	if c.APIMode != nil {
		s.Features.APIMode = *c.APIMode
	}
	if c.Goodwill != nil {
		s.Features.Goodwill = c.Goodwill
	}
	if c.Inventory != nil {
		s.Features.Inventory = c.Inventory
	}
}

func newSessionConfigureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "configure <session> <file.yaml>",
		Short: "Load statuses, triggers, dice and features into a session",
		Long: `Loads a YAML document into a session. Recognized keys:

  title, hideFirstMessage, customStatuses, triggers, diceRolls,
  apiMode (standard, oneStepFC, twoStepFC), goodwill, inventory

Keys that are not present leave the session as it is.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSessionConfig(args[1])
			if err != nil {
				return err
			}
			return withState(cmd.Context(), func(a *app) error {
				s, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				cfg.applyTo(s)
				return a.sessions.Save(cmd.Context(), s)
			})
		},
	}
}
