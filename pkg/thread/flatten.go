package thread

import "loom/pkg/models"

// Flatten walks the forest in pre-order, which preserves both top-level
// order and per-parent reply order. Flatten then Build round-trips a
// conversation, so the flat form is what the store persists.
func Flatten(conv *models.Conversation) []models.Message {
	out := make([]models.Message, 0, 16)
	var walk func(m *models.Message)
	walk = func(m *models.Message) {
		flat := *m
		flat.Replies = nil
		out = append(out, flat)
		for _, r := range m.Replies {
			walk(r)
		}
	}
	for _, m := range conv.Messages {
		walk(m)
	}
	return out
}

// Build reassembles a forest from messages in persisted (pre-order)
// sequence, linking each message under its parent. A message whose
// ParentID does not resolve — malformed persisted state — is recovered by
// attaching it at top level with the dangling reference cleared; the
// second return value counts such repairs.
func Build(conv *models.Conversation, flat []models.Message) (*Tree, int) {
	conv.Messages = nil
	t := New(conv)
	repaired := 0
	for i := range flat {
		m := flat[i]
		m.Replies = nil
		msg := &m
		if msg.ParentID == "" {
			t.AddRoot(msg)
			continue
		}
		if err := t.AddReply(msg.ParentID, msg); err != nil {
			repaired++
			t.AddRoot(msg)
		}
	}
	return t, repaired
}
