package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const shortIDLength = 8

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

// findSession resolves a full session id or a unique prefix of one.
func findSession(repo *session.Repository, ref string) (*session.Session, error) {
	if s, err := repo.Get(ref); err == nil {
		return s, nil
	}
	var found *session.Session
	for _, s := range repo.List() {
		if strings.HasPrefix(s.ID, ref) {
			if found != nil {
				return nil, errors.Errorf("session prefix %q is ambiguous", ref)
			}
			found = s
		}
	}
	if found == nil {
		return nil, errors.Wrapf(session.ErrSessionNotFound, "session %s", ref)
	}
	return found, nil
}

// findMessage resolves a full message id or a unique prefix of one within the session.
func findMessage(sess *session.Session, ref string) (*conversation.Message, error) {
	if sess.Tree == nil {
		return nil, errors.Wrapf(conversation.ErrMessageNotFound, "message %s", ref)
	}
	if id, err := conversation.ParseNodeID(ref); err == nil {
		if m, ok := sess.Tree.Get(id); ok {
			return m, nil
		}
	}
	var found *conversation.Message
	for _, m := range sess.Tree.Messages() {
		if strings.HasPrefix(m.ID.String(), ref) {
			if found != nil {
				return nil, errors.Errorf("message prefix %q is ambiguous", ref)
			}
			found = m
		}
	}
	if found == nil {
		return nil, errors.Wrapf(conversation.ErrMessageNotFound, "message %s", ref)
	}
	return found, nil
}

func renderMarkdown(text string) string {
	if viper.GetBool("no-render") || !isatty.IsTerminal(os.Stdout.Fd()) {
		return text
	}
	styled, err := glamour.Render(text, "dark")
	if err != nil {
		log.Debug().Err(err).Msg("could not render markdown")
		return text
	}
	return styled
}

func printMessage(w io.Writer, tree *conversation.Tree, m *conversation.Message) {
	siblingInfo := ""
	if n := len(tree.Siblings(m.ID)); n > 0 {
		siblingInfo = fmt.Sprintf(" (%d alternatives)", n)
	}
	fmt.Fprintf(w, "[%s] %s%s\n", shortID(m.ID.String()), m.Speaker, siblingInfo)
	if m.Speaker == conversation.SpeakerAssistant {
		fmt.Fprintln(w, strings.TrimRight(renderMarkdown(m.Text), "\n"))
	} else {
		fmt.Fprintln(w, m.Text)
	}
	if m.TokenUsage != nil {
		fmt.Fprintf(w, "  tokens: in %d, out %d, thinking %d, total %d\n",
			m.TokenUsage.Input, m.TokenUsage.Output, m.TokenUsage.Thinking, m.TokenUsage.Total)
	}
	fmt.Fprintln(w)
}

func printActivePath(w io.Writer, sess *session.Session) {
	for m := range sess.ActivePath() {
		printMessage(w, sess.Tree, m)
	}
}

// printTree prints the whole tree, marking the messages on the active path.
func printTree(w io.Writer, tree *conversation.Tree) {
	root, ok := tree.Root()
	if !ok {
		fmt.Fprintln(w, "(empty)")
		return
	}
	active := map[conversation.NodeID]bool{}
	for m := range tree.ActivePath(false) {
		active[m.ID] = true
	}
	var walk func(m *conversation.Message, depth int)
	walk = func(m *conversation.Message, depth int) {
		marker := " "
		if active[m.ID] {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%s %s %-9s %s\n", strings.Repeat("  ", depth), marker,
			shortID(m.ID.String()), m.Speaker, preview(m.Text, 60))
		for _, c := range tree.Children(m.ID) {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	return text
}
