package cmds

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-go-golems/loomchat/pkg/chat"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

// newConfirmer asks on the terminal before moving to the next API key. With autoYes the
// rotation is accepted without asking, at most once per other key so that a fully rate
// limited key ring ends the command instead of looping.
func newConfirmer(autoYes bool, keys int) chat.Confirmer {
	if autoYes {
		return &boundedConfirmer{remaining: keys - 1}
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		log.Debug().Msg("stdin is not a terminal, key rotation will be declined")
		return chat.NeverRotate
	}
	return chat.ConfirmFunc(askRotation)
}

type boundedConfirmer struct {
	mu        sync.Mutex
	remaining int
}

func (b *boundedConfirmer) ConfirmRotation(_ context.Context, from, to settings.APIKey, _ error) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		log.Warn().Str("key", from.Name).Msg("every API key is rate limited")
		return false, nil
	}
	b.remaining--
	fmt.Fprintf(os.Stderr, "API key %s is rate limited, switching to %s\n", from.Name, to.Name)
	return true, nil
}

func askRotation(ctx context.Context, from, to settings.APIKey, cause error) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ui := &input.UI{
		Writer: os.Stderr,
		Reader: os.Stdin,
	}

	query := fmt.Sprintf("\nAPI key %s (%s) hit its rate limit: %v\nSwitch to %s (%s) and retry? [y/n]",
		from.Name, from.Masked(), cause, to.Name, to.Masked())
	answer, err := ui.Ask(query, &input.Options{
		Default:  "y",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}
