package conversation

import (
	"encoding/json"
	"iter"
	"slices"
	"time"

	"github.com/pkg/errors"
)

// Tree stores the messages of a session as an arena keyed by message id.
//
// Nodes are linked only through Message.ParentID. Every node additionally keeps an
// ActiveChildID that selects which branch is currently shown: following ActiveChildID from
// the root yields the active path, the linear conversation that is sent to the model.
//
// A tree holds exactly one root, or none when empty. Siblings are ordered by insertion
// time, which is also the order used when a tree is serialized.
type Tree struct {
	nodes    map[NodeID]*Message
	order    []NodeID
	children map[NodeID][]NodeID
	rootID   NodeID
}

func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[NodeID]*Message),
		children: make(map[NodeID][]NodeID),
	}
}

func (t *Tree) Len() int {
	return len(t.order)
}

func (t *Tree) Get(id NodeID) (*Message, bool) {
	ret, ok := t.nodes[id]
	return ret, ok
}

func (t *Tree) Root() (*Message, bool) {
	if t.rootID == NullNode {
		return nil, false
	}
	return t.Get(t.rootID)
}

// Messages returns all messages in insertion order.
func (t *Tree) Messages() Conversation {
	ret := make(Conversation, 0, len(t.order))
	for _, id := range t.order {
		ret = append(ret, t.nodes[id])
	}
	return ret
}

// Children returns the direct children of id in insertion order.
func (t *Tree) Children(id NodeID) Conversation {
	ids := t.children[id]
	ret := make(Conversation, 0, len(ids))
	for _, childID := range ids {
		ret = append(ret, t.nodes[childID])
	}
	return ret
}

// Siblings returns the other children of id's parent. The root has no siblings.
func (t *Tree) Siblings(id NodeID) Conversation {
	node, ok := t.nodes[id]
	if !ok || node.ParentID == NullNode {
		return nil
	}
	var ret Conversation
	for _, siblingID := range t.children[node.ParentID] {
		if siblingID != id {
			ret = append(ret, t.nodes[siblingID])
		}
	}
	return ret
}

// Append links msg under parentID and makes it the parent's active child.
// Passing NullNode as parent creates the root, which is only allowed on an empty tree.
func (t *Tree) Append(parentID NodeID, msg *Message) error {
	if msg == nil {
		return errors.New("cannot append nil message")
	}
	if t.nodes == nil {
		t.nodes = make(map[NodeID]*Message)
		t.children = make(map[NodeID][]NodeID)
	}
	if msg.ID == NullNode {
		msg.ID = NewNodeID()
	}
	if _, exists := t.nodes[msg.ID]; exists {
		return errors.Wrapf(ErrDuplicateMessage, "append %s", msg.ID)
	}

	var parent *Message
	if parentID == NullNode {
		if t.rootID != NullNode {
			return errors.Wrapf(ErrRootExists, "append %s", msg.ID)
		}
	} else {
		p, ok := t.nodes[parentID]
		if !ok {
			return errors.Wrapf(ErrMessageNotFound, "parent %s", parentID)
		}
		parent = p
	}

	msg.ParentID = parentID
	msg.ActiveChildID = NullNode
	t.nodes[msg.ID] = msg
	t.order = append(t.order, msg.ID)

	if parent == nil {
		t.rootID = msg.ID
		return nil
	}
	t.children[parentID] = append(t.children[parentID], msg.ID)
	parent.ActiveChildID = msg.ID
	return nil
}

// ActivePath yields the messages reachable from the root by following ActiveChildID.
// The sequence can be ranged over any number of times. When hideFirst is set, the root
// is not yielded.
func (t *Tree) ActivePath(hideFirst bool) iter.Seq[*Message] {
	return func(yield func(*Message) bool) {
		visited := make(map[NodeID]struct{}, len(t.nodes))
		id := t.rootID
		first := true
		for id != NullNode {
			if _, seen := visited[id]; seen {
				return
			}
			visited[id] = struct{}{}
			node, ok := t.nodes[id]
			if !ok {
				return
			}
			if !(first && hideFirst) {
				if !yield(node) {
					return
				}
			}
			first = false
			id = node.ActiveChildID
		}
	}
}

// Tail returns the last message of the active path.
func (t *Tree) Tail() (*Message, bool) {
	var last *Message
	for m := range t.ActivePath(false) {
		last = m
	}
	return last, last != nil
}

// Thread returns the path from the root to id, both included.
func (t *Tree) Thread(id NodeID) Conversation {
	var thread Conversation
	for id != NullNode && len(thread) <= len(t.nodes) {
		node, ok := t.nodes[id]
		if !ok {
			break
		}
		thread = append(thread, node)
		id = node.ParentID
	}
	slices.Reverse(thread)
	return thread
}

// Ancestors returns the path from the root to the parent of id.
func (t *Tree) Ancestors(id NodeID) Conversation {
	thread := t.Thread(id)
	if len(thread) == 0 {
		return nil
	}
	return thread[:len(thread)-1]
}

// Edit replaces the text of a message. The tree shape is untouched.
func (t *Tree) Edit(id NodeID, text string) error {
	node, ok := t.nodes[id]
	if !ok {
		return errors.Wrapf(ErrMessageNotFound, "edit %s", id)
	}
	node.Text = text
	node.LastUpdate = time.Now()
	return nil
}

// Delete removes a message and splices its only child, if any, into its place.
//
// Deleting is refused with a *BranchExistsError when the message has more than one child
// or when its parent has other children, since either case would require merging
// branches. A refused delete leaves the tree untouched.
func (t *Tree) Delete(id NodeID) error {
	node, ok := t.nodes[id]
	if !ok {
		return errors.Wrapf(ErrMessageNotFound, "delete %s", id)
	}

	children := t.children[id]
	siblings := 0
	if node.ParentID != NullNode {
		siblings = len(t.children[node.ParentID]) - 1
	}
	if len(children) > 1 || siblings > 0 {
		return &BranchExistsError{ID: id, Children: len(children), Siblings: siblings}
	}

	childID := NullNode
	if len(children) == 1 {
		childID = children[0]
		t.nodes[childID].ParentID = node.ParentID
	}

	if node.ParentID == NullNode {
		t.rootID = childID
	} else {
		parent := t.nodes[node.ParentID]
		if parent.ActiveChildID == id {
			parent.ActiveChildID = childID
		}
		if childID == NullNode {
			t.children[node.ParentID] = nil
		} else {
			t.children[node.ParentID] = []NodeID{childID}
		}
	}

	delete(t.children, id)
	delete(t.nodes, id)
	t.order = slices.DeleteFunc(t.order, func(o NodeID) bool { return o == id })
	return nil
}

// SwitchActiveChild selects which child of parentID continues the active path.
func (t *Tree) SwitchActiveChild(parentID, childID NodeID) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return errors.Wrapf(ErrMessageNotFound, "parent %s", parentID)
	}
	if !slices.Contains(t.children[parentID], childID) {
		return errors.Wrapf(ErrNotAChild, "%s under %s", childID, parentID)
	}
	parent.ActiveChildID = childID
	return nil
}

// Validate checks the structural invariants of the tree: a single root, no dangling
// parents, active children that are real children, and acyclic parent links.
func (t *Tree) Validate() error {
	roots := 0
	for _, id := range t.order {
		node := t.nodes[id]
		if node.ParentID == NullNode {
			roots++
			if id != t.rootID {
				return &InvalidTreeError{ID: id, Reason: "second root"}
			}
		} else if _, ok := t.nodes[node.ParentID]; !ok {
			return &InvalidTreeError{ID: id, Reason: "dangling parent " + node.ParentID.String()}
		}
		if node.ActiveChildID != NullNode {
			child, ok := t.nodes[node.ActiveChildID]
			if !ok || child.ParentID != id {
				return &InvalidTreeError{ID: id, Reason: "active child is not a child"}
			}
		}

		steps := 0
		for p := node.ParentID; p != NullNode; steps++ {
			if steps > len(t.nodes) {
				return &InvalidTreeError{ID: id, Reason: "cycle in parent links"}
			}
			parent, ok := t.nodes[p]
			if !ok {
				break
			}
			p = parent.ParentID
		}
	}
	if len(t.order) > 0 && roots != 1 {
		return &InvalidTreeError{ID: t.rootID, Reason: "tree has no root"}
	}
	return nil
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	msgs := t.Messages()
	if msgs == nil {
		msgs = Conversation{}
	}
	return json.Marshal(msgs)
}

// UnmarshalJSON rebuilds the arena from a flat list of messages. Links are taken as stored
// and the result is validated.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var msgs []*Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	ret := NewTree()
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if _, exists := ret.nodes[m.ID]; exists {
			return errors.Wrapf(ErrDuplicateMessage, "load %s", m.ID)
		}
		ret.nodes[m.ID] = m
		ret.order = append(ret.order, m.ID)
		if m.ParentID == NullNode {
			if ret.rootID == NullNode {
				ret.rootID = m.ID
			}
		} else {
			ret.children[m.ParentID] = append(ret.children[m.ParentID], m.ID)
		}
	}
	// stale active pointers fall back to the newest child
	for _, m := range ret.nodes {
		if m.ActiveChildID == NullNode {
			continue
		}
		if child, ok := ret.nodes[m.ActiveChildID]; !ok || child.ParentID != m.ID {
			m.ActiveChildID = NullNode
			if kids := ret.children[m.ID]; len(kids) > 0 {
				m.ActiveChildID = kids[len(kids)-1]
			}
		}
	}
	if err := ret.Validate(); err != nil {
		return err
	}
	*t = *ret
	return nil
}
