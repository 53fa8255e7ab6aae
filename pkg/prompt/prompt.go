// Package prompt assembles what is sent to the model for one request: the history above the
// target message, the framed user input with its instruction blocks, and the optional
// dummy turns that follow it.
package prompt

import (
	"strings"

	"github.com/go-go-golems/loomchat/pkg/conversation"
)

const (
	InstructionStart = "[Internal Instructions Start]"
	InstructionEnd   = "[Internal Instructions End]"
	UserTextStart    = "[User Text Start]"
	UserTextEnd      = "[User Text End]"
)

// Turn is one entry of the request conversation.
type Turn struct {
	Speaker conversation.Speaker `json:"speaker"`
	Text    string               `json:"text"`
}

// History returns the messages above target, root first. The target itself is excluded.
func History(tree *conversation.Tree, target conversation.NodeID) conversation.Conversation {
	if tree == nil {
		return nil
	}
	return tree.Ancestors(target)
}

// FinalUserInput frames the user text, preceded by the non-empty instruction blocks.
func FinalUserInput(input string, blocks ...string) string {
	var nonEmpty []string
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}

	var sb strings.Builder
	if len(nonEmpty) > 0 {
		sb.WriteString(InstructionStart)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(nonEmpty, "\n"))
		sb.WriteString("\n")
		sb.WriteString(InstructionEnd)
		sb.WriteString("\n")
	}
	sb.WriteString(UserTextStart)
	sb.WriteString("\n")
	sb.WriteString(input)
	sb.WriteString("\n")
	sb.WriteString(UserTextEnd)
	return sb.String()
}

// Injections are the dummy turns placed after the real user turn. Empty strings are skipped.
type Injections struct {
	DummyUser  string
	DummyModel string
}

// Assemble builds the request turns: history, the final user input, then the dummy user
// turn and the dummy model turn when configured.
func Assemble(history conversation.Conversation, finalInput string, inj Injections) []Turn {
	ret := make([]Turn, 0, len(history)+3)
	for _, m := range history {
		ret = append(ret, Turn{Speaker: m.Speaker, Text: m.Text})
	}
	ret = append(ret, Turn{Speaker: conversation.SpeakerUser, Text: finalInput})
	if inj.DummyUser != "" {
		ret = append(ret, Turn{Speaker: conversation.SpeakerUser, Text: inj.DummyUser})
	}
	if inj.DummyModel != "" {
		ret = append(ret, Turn{Speaker: conversation.SpeakerAssistant, Text: inj.DummyModel})
	}
	return ret
}
