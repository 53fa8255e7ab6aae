package cmds

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the API key ring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name> <key>",
			Short: "Add an API key, the first key becomes active",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if strings.TrimSpace(args[1]) == "" {
					return errors.New("empty API key")
				}
				return withState(cmd.Context(), func(a *app) error {
					k := a.settings.AddKey(args[0], strings.TrimSpace(args[1]))
					if err := a.saveSettings(cmd.Context()); err != nil {
						return err
					}
					fmt.Println(k.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List API keys, * marks the active one",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withState(cmd.Context(), func(a *app) error {
					active, _ := a.settings.ActiveKey()
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "\tID\tNAME\tKEY")
					for _, k := range a.settings.APIKeys {
						marker := ""
						if k.ID == active.ID {
							marker = "*"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, shortID(k.ID), k.Name, k.Masked())
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "remove <key>",
			Short: "Remove an API key by id, id prefix or name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withState(cmd.Context(), func(a *app) error {
					k, err := findKey(a.settings, args[0])
					if err != nil {
						return err
					}
					a.settings.RemoveKey(k.ID)
					return a.saveSettings(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "use <key>",
			Short: "Make an API key active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withState(cmd.Context(), func(a *app) error {
					k, err := findKey(a.settings, args[0])
					if err != nil {
						return err
					}
					a.settings.ActiveAPIKeyID = k.ID
					return a.saveSettings(cmd.Context())
				})
			},
		},
	)
	return cmd
}

func findKey(s *settings.Settings, ref string) (settings.APIKey, error) {
	var found []settings.APIKey
	for _, k := range s.APIKeys {
		if k.ID == ref || k.Name == ref {
			return k, nil
		}
		if strings.HasPrefix(k.ID, ref) {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		return settings.APIKey{}, errors.Errorf("no API key %q", ref)
	case 1:
		return found[0], nil
	default:
		return settings.APIKey{}, errors.Errorf("API key prefix %q is ambiguous", ref)
	}
}
