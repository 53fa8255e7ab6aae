package cmds

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/client/gemini"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// listAllModels asks every key for its models concurrently. Keys that fail are logged and
// skipped; when every key fails the built-in model list is returned.
func listAllModels(ctx context.Context, lister client.ModelLister, keys []settings.APIKey) []string {
	var mu sync.Mutex
	seen := map[string]struct{}{}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, k := range keys {
		eg.Go(func() error {
			models, err := lister.ListModels(ctx, k)
			if err != nil {
				log.Warn().Err(err).Str("key", k.Name).Msg("could not list models")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, m := range models {
				seen[m] = struct{}{}
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(seen) == 0 {
		return append([]string(nil), settings.AvailableModels...)
	}
	ret := make([]string, 0, len(seen))
	for m := range seen {
		ret = append(ret, m)
	}
	sort.Strings(ret)
	return ret
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available to the configured API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(a *app) error {
				keys := a.settings.APIKeys
				if k := strings.TrimSpace(viper.GetString("api-key")); k != "" {
					keys = []settings.APIKey{{ID: overrideKeyID, Name: "command line", Key: k}}
				}
				if len(keys) == 0 {
					fmt.Fprintln(os.Stderr, "no API key configured, showing the built-in list")
				}
				for _, m := range listAllModels(cmd.Context(), gemini.New(), keys) {
					marker := " "
					if m == a.settings.Model {
						marker = "*"
					}
					fmt.Printf("%s %s\n", marker, m)
				}
				return nil
			})
		},
	}
}
