package cmds

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change the stored settings",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigSetCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the settings as YAML, API keys masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				s := a.settings.Clone()
				for i := range s.APIKeys {
					s.APIKeys[i].Key = s.APIKeys[i].Masked()
				}
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				if err := enc.Encode(s); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}
}

type settingSetter func(s *settings.Settings, value string) error

func boolSetter(field func(s *settings.Settings) *bool) settingSetter {
	return func(s *settings.Settings, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*field(s) = b
		return nil
	}
}

func intSetter(field func(s *settings.Settings) *int) settingSetter {
	return func(s *settings.Settings, value string) error {
		i, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(s) = i
		return nil
	}
}

// optionalFloat32 clears the field on an empty value.
func optionalFloat32(field func(s *settings.Settings) **float32) settingSetter {
	return func(s *settings.Settings, value string) error {
		if value == "" {
			*field(s) = nil
			return nil
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return err
		}
		v := float32(f)
		*field(s) = &v
		return nil
	}
}

func optionalInt32(field func(s *settings.Settings) **int32) settingSetter {
	return func(s *settings.Settings, value string) error {
		if value == "" {
			*field(s) = nil
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return err
		}
		v := int32(i)
		*field(s) = &v
		return nil
	}
}

// promptSetter sets the prompt text and enables it. An empty value disables the prompt
// and keeps its text.
func promptSetter(field func(s *settings.Settings) *settings.PromptToggle) settingSetter {
	return func(s *settings.Settings, value string) error {
		p := field(s)
		if value == "" {
			p.Enabled = false
			return nil
		}
		p.Text = value
		p.Enabled = true
		return nil
	}
}

var settingSetters = map[string]settingSetter{
	"model": func(s *settings.Settings, value string) error {
		if strings.TrimSpace(value) == "" {
			return errors.New("model cannot be empty")
		}
		s.Model = value
		return nil
	},
	"system-prompt":       promptSetter(func(s *settings.Settings) *settings.PromptToggle { return &s.SystemPrompt }),
	"dummy-user-prompt":   promptSetter(func(s *settings.Settings) *settings.PromptToggle { return &s.DummyUserPrompt }),
	"dummy-model-prompt":  promptSetter(func(s *settings.Settings) *settings.PromptToggle { return &s.DummyModelPrompt }),
	"template-prompts":    boolSetter(func(s *settings.Settings) *bool { return &s.TemplatePrompts }),
	"loop-api-keys":       boolSetter(func(s *settings.Settings) *bool { return &s.APIErrorHandling.LoopAPIKeys }),
	"exponential-backoff": boolSetter(func(s *settings.Settings) *bool { return &s.APIErrorHandling.ExponentialBackoff }),
	"max-retries":         intSetter(func(s *settings.Settings) *int { return &s.APIErrorHandling.MaxRetries }),
	"initial-wait-time":   intSetter(func(s *settings.Settings) *int { return &s.APIErrorHandling.InitialWaitTime }),
	"auto-correct-url":    boolSetter(func(s *settings.Settings) *bool { return &s.Assist.AutoCorrectURL }),
	"temperature":         optionalFloat32(func(s *settings.Settings) **float32 { return &s.Generation.Temperature }),
	"top-k":               optionalFloat32(func(s *settings.Settings) **float32 { return &s.Generation.TopK }),
	"top-p":               optionalFloat32(func(s *settings.Settings) **float32 { return &s.Generation.TopP }),
	"max-output-tokens":   optionalInt32(func(s *settings.Settings) **int32 { return &s.Generation.MaxOutputTokens }),
	"thinking-budget":     optionalInt32(func(s *settings.Settings) **int32 { return &s.Generation.ThinkingBudget }),
}

func settingNames() []string {
	ret := make([]string, 0, len(settingSetters))
	for k := range settingSetters {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Change a setting, an empty value clears optional settings",
		Long:  "Settings: " + strings.Join(settingNames(), ", "),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, ok := settingSetters[args[0]]
			if !ok {
				return errors.Errorf("unknown setting %q, expected one of %s", args[0], strings.Join(settingNames(), ", "))
			}
			value := ""
			if len(args) > 1 {
				value = args[1]
			}
			return withState(cmd.Context(), func(a *app) error {
				if err := set(a.settings, value); err != nil {
					return errors.Wrapf(err, "set %s", args[0])
				}
				if err := a.saveSettings(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("%s updated\n", args[0])
				return nil
			})
		},
	}
}
