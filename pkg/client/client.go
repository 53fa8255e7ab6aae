// Package client defines the contract between the chat service and a generative model API.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/settings"
)

var ErrRateLimited = errors.New("rate limited")

// RateLimitError reports that the credential used for a request hit its quota.
type RateLimitError struct {
	KeyID string
	Err   error
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return ErrRateLimited.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (key %s)", ErrRateLimited, e.KeyID)
	}
	return fmt.Sprintf("%s (key %s): %v", ErrRateLimited, e.KeyID, e.Err)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Err }

// ConversationContext is everything the model sees besides the final user input.
type ConversationContext struct {
	// Turns is the assembled conversation, ending with the final user input and any dummy turns.
	Turns    []prompt.Turn
	Features session.FeatureSettings
}

type Request struct {
	Credential settings.APIKey
	Model      string
	Settings   *settings.Settings
	// SystemPrompt is the already rendered system instruction, empty for none.
	SystemPrompt string
	Context      ConversationContext
	UserInput    string
}

type Response struct {
	Text string
	// Metadata is the decoded raw response, kept for inspection.
	Metadata map[string]interface{}
	// Request is the request body as sent.
	Request             map[string]interface{}
	Usage               *conversation.TokenUsage
	GoodwillFluctuation *float64
	InventoryChanges    []session.ItemChange
}

type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

type ModelLister interface {
	ListModels(ctx context.Context, credential settings.APIKey) ([]string, error)
}
