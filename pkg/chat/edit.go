package chat

import (
	"context"

	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EditMessage replaces the text of a message. Assistant text goes through the session
// corrector first when URL correction is enabled.
func (s *Service) EditMessage(ctx context.Context, sess *session.Session, id conversation.NodeID, text string) error {
	return s.mutate(ctx, sess, func(tree *conversation.Tree) error {
		m, ok := tree.Get(id)
		if !ok {
			return errors.Wrapf(conversation.ErrMessageNotFound, "edit %s", id)
		}
		if m.Speaker == conversation.SpeakerAssistant && s.Settings().Assist.AutoCorrectURL {
			text = s.correctText(sess, text)
		}
		return tree.Edit(id, text)
	})
}

// DeleteMessage removes a single message. Messages that are part of a branch are refused with
// a *conversation.BranchExistsError.
func (s *Service) DeleteMessage(ctx context.Context, sess *session.Session, id conversation.NodeID) error {
	return s.mutate(ctx, sess, func(tree *conversation.Tree) error {
		return tree.Delete(id)
	})
}

func (s *Service) SwitchActiveChild(ctx context.Context, sess *session.Session, parentID, childID conversation.NodeID) error {
	return s.mutate(ctx, sess, func(tree *conversation.Tree) error {
		return tree.SwitchActiveChild(parentID, childID)
	})
}

// UpdateStatus changes a status by hand, honoring its update mode.
func (s *Service) UpdateStatus(ctx context.Context, sess *session.Session, statusID string, value string) error {
	return s.mutate(ctx, sess, func(*conversation.Tree) error {
		return sess.CustomStatuses.Update(statusID, value)
	})
}

func (s *Service) mutate(ctx context.Context, sess *session.Session, fn func(tree *conversation.Tree) error) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if err := s.acquire(sess.ID); err != nil {
		return err
	}
	defer s.release(sess.ID)

	if err := fn(treeOf(sess)); err != nil {
		log.Debug().Err(err).Str("session", sess.ID).Msg("session change refused")
		return err
	}
	sess.LastUpdatedAt = s.now()
	s.persist(ctx, sess)
	return nil
}
