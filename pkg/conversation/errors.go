package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrRootExists       = errors.New("conversation already has a root message")
	ErrDuplicateMessage = errors.New("message id already in tree")
	ErrNotAChild        = errors.New("message is not a child of parent")
	ErrBranchExists     = errors.New("cannot delete a message that is part of a branch")
	ErrInvalidTree      = errors.New("invalid conversation tree")
)

// BranchExistsError is returned when deleting a message would have to merge branches.
type BranchExistsError struct {
	ID       NodeID
	Children int
	Siblings int
}

func (e *BranchExistsError) Error() string {
	if e == nil {
		return ErrBranchExists.Error()
	}
	return fmt.Sprintf("%s: message %s has %d children and %d siblings", ErrBranchExists, e.ID, e.Children, e.Siblings)
}

func (e *BranchExistsError) Is(target error) bool { return target == ErrBranchExists }

// InvalidTreeError reports a broken structural invariant found by Validate.
type InvalidTreeError struct {
	ID     NodeID
	Reason string
}

func (e *InvalidTreeError) Error() string {
	if e == nil {
		return ErrInvalidTree.Error()
	}
	return fmt.Sprintf("%s: message %s: %s", ErrInvalidTree, e.ID, e.Reason)
}

func (e *InvalidTreeError) Is(target error) bool { return target == ErrInvalidTree }
