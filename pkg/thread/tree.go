// Package thread maintains the reply forest of one conversation: ordered
// top-level messages, ordered child replies, and an id index so any node
// can be addressed without recursive search.
package thread

import (
	"errors"
	"fmt"

	"loom/pkg/models"
)

// ErrNotFound reports that a message id did not resolve inside the
// conversation. Edit and delete surface it instead of silently
// no-opping so callers can tell "already absent" from success.
var ErrNotFound = errors.New("message not found")

// MaxReplyDepth is the deepest nesting level at which the reply
// affordance is still offered (root = 0). It is presentation policy:
// AddReply itself does not enforce it.
const MaxReplyDepth = 3

type node struct {
	msg    *models.Message
	parent *models.Message // nil for top-level messages
	depth  int
}

// Tree wraps a conversation and keeps a flat id->node index alongside the
// forest. The index is rebuilt on construction and maintained on every
// insert and delete.
type Tree struct {
	conv  *models.Conversation
	index map[string]*node
}

// New builds a tree over conv, indexing every message reachable from the
// top-level list.
func New(conv *models.Conversation) *Tree {
	t := &Tree{conv: conv, index: make(map[string]*node)}
	for _, m := range conv.Messages {
		t.indexSubtree(m, nil, 0)
	}
	return t
}

func (t *Tree) indexSubtree(m *models.Message, parent *models.Message, depth int) {
	t.index[m.ID] = &node{msg: m, parent: parent, depth: depth}
	for _, r := range m.Replies {
		t.indexSubtree(r, m, depth+1)
	}
}

// Conversation returns the underlying conversation.
func (t *Tree) Conversation() *models.Conversation { return t.conv }

// Len returns the number of indexed messages.
func (t *Tree) Len() int { return len(t.index) }

// Get returns the message with the given id.
func (t *Tree) Get(id string) (*models.Message, bool) {
	n, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return n.msg, true
}

// Depth returns the nesting depth of id (root = 0), or -1 when unknown.
func (t *Tree) Depth(id string) int {
	n, ok := t.index[id]
	if !ok {
		return -1
	}
	return n.depth
}

// CanReply reports whether the reply affordance should be offered for id.
func (t *Tree) CanReply(id string) bool {
	n, ok := t.index[id]
	return ok && n.depth < MaxReplyDepth
}

// AddRoot appends m to the top-level message list.
func (t *Tree) AddRoot(m *models.Message) {
	m.ParentID = ""
	t.conv.Messages = append(t.conv.Messages, m)
	t.index[m.ID] = &node{msg: m, depth: 0}
}

// AddReply appends m to the replies of parentID in arrival order, setting
// m.ParentID. The tree is untouched when parentID does not resolve.
func (t *Tree) AddReply(parentID string, m *models.Message) error {
	pn, ok := t.index[parentID]
	if !ok {
		return fmt.Errorf("add reply to %s: %w", parentID, ErrNotFound)
	}
	m.ParentID = parentID
	pn.msg.Replies = append(pn.msg.Replies, m)
	t.index[m.ID] = &node{msg: m, parent: pn.msg, depth: pn.depth + 1}
	return nil
}

// Edit replaces the content of the addressed message wherever it sits in
// the forest.
func (t *Tree) Edit(id, content string) error {
	n, ok := t.index[id]
	if !ok {
		return fmt.Errorf("edit %s: %w", id, ErrNotFound)
	}
	n.msg.Content = content
	return nil
}

// Delete removes the addressed message together with its entire reply
// subtree and returns how many messages were removed.
func (t *Tree) Delete(id string) (int, error) {
	n, ok := t.index[id]
	if !ok {
		return 0, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	if n.parent != nil {
		n.parent.Replies = removeMessage(n.parent.Replies, n.msg)
	} else {
		t.conv.Messages = removeMessage(t.conv.Messages, n.msg)
	}
	removed := t.unindexSubtree(n.msg)
	return removed, nil
}

func (t *Tree) unindexSubtree(m *models.Message) int {
	count := 1
	delete(t.index, m.ID)
	for _, r := range m.Replies {
		count += t.unindexSubtree(r)
	}
	return count
}

func removeMessage(list []*models.Message, m *models.Message) []*models.Message {
	for i, v := range list {
		if v == m {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Verify checks the structural invariant: every reply's ParentID equals
// its container's ID and every id is indexed exactly once.
func (t *Tree) Verify() error {
	seen := make(map[string]struct{}, len(t.index))
	var walk func(m *models.Message, parentID string) error
	walk = func(m *models.Message, parentID string) error {
		if m.ParentID != parentID {
			return fmt.Errorf("message %s has parent_id %q, expected %q", m.ID, m.ParentID, parentID)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate message id %s", m.ID)
		}
		seen[m.ID] = struct{}{}
		if _, ok := t.index[m.ID]; !ok {
			return fmt.Errorf("message %s missing from index", m.ID)
		}
		for _, r := range m.Replies {
			if err := walk(r, m.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, m := range t.conv.Messages {
		if err := walk(m, ""); err != nil {
			return err
		}
	}
	if len(seen) != len(t.index) {
		return fmt.Errorf("index holds %d entries for %d reachable messages", len(t.index), len(seen))
	}
	return nil
}
