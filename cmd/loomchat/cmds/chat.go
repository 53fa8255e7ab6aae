package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/chat"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// sessionFor returns the session named by ref, the most recently updated one when ref is
// empty, or a new one when there is none or newSession is set.
func sessionFor(ctx context.Context, a *app, ref string, newSession bool) (*session.Session, error) {
	if newSession {
		return a.sessions.Create(ctx)
	}
	if ref != "" {
		return findSession(a.sessions, ref)
	}
	if all := a.sessions.List(); len(all) > 0 {
		return all[0], nil
	}
	return a.sessions.Create(ctx)
}

func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return "", errors.New("no message given")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errors.Wrap(err, "read message from stdin")
	}
	return string(b), nil
}

func printResult(res *chat.Result, sess *session.Session) {
	if len(res.Fired) > 0 {
		fmt.Fprintf(os.Stderr, "triggers fired: %s\n", strings.Join(res.Fired, ", "))
	}
	printMessage(os.Stdout, sess.Tree, res.Assistant)
}

func newSendCommand() *cobra.Command {
	var sessionRef string
	var newSession bool
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a message and print the reply",
		Long: `Appends a message to the active path of a session and prints the model reply.
Without arguments the message is read from stdin. Without --session the most recently
updated session is continued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				sess, err := sessionFor(cmd.Context(), a, sessionRef, newSession)
				if err != nil {
					return err
				}
				res, err := a.service.SendUserMessage(cmd.Context(), sess, input)
				if err != nil {
					return err
				}
				printResult(res, sess)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "Session id or prefix")
	cmd.Flags().BoolVar(&newSession, "new", false, "Start a new session")
	return cmd
}

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <session> <message>",
		Short: "Generate an alternative reply to a message",
		Long: `Asks the model again for the reply to a user message. The new reply is added as
another branch and becomes active. Given a reply, its user message is retried.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				sess, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				m, err := findMessage(sess, args[1])
				if err != nil {
					return err
				}
				res, err := a.service.RetryMessage(cmd.Context(), sess, m.ID)
				if err != nil {
					return err
				}
				printResult(res, sess)
				return nil
			})
		},
	}
}

func newEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <session> <message> [text...]",
		Short: "Replace the text of a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args[2:])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				sess, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				m, err := findMessage(sess, args[1])
				if err != nil {
					return err
				}
				return a.service.EditMessage(cmd.Context(), sess, m.ID, text)
			})
		},
	}
}

func newDeleteMessageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <session> <message>",
		Short: "Delete a single message that has no alternatives",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				sess, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				m, err := findMessage(sess, args[1])
				if err != nil {
					return err
				}
				return a.service.DeleteMessage(cmd.Context(), sess, m.ID)
			})
		},
	}
}

func newSwitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <session> <message>",
		Short: "Make a message the active branch under its parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				sess, err := findSession(a.sessions, args[0])
				if err != nil {
					return err
				}
				m, err := findMessage(sess, args[1])
				if err != nil {
					return err
				}
				return a.service.SwitchActiveChild(cmd.Context(), sess, m.ParentID, m.ID)
			})
		},
	}
}
