package thread

import (
	"errors"
	"testing"

	"loom/pkg/models"
)

func msg(id, content string) *models.Message {
	return &models.Message{ID: id, Role: models.RoleUser, Content: content}
}

func buildSample(t *testing.T) *Tree {
	t.Helper()
	conv := &models.Conversation{ID: "c1"}
	tr := New(conv)
	tr.AddRoot(msg("m1", "root one"))
	tr.AddRoot(msg("m2", "root two"))
	if err := tr.AddReply("m1", msg("m1a", "first reply")); err != nil {
		t.Fatalf("AddReply: %v", err)
	}
	if err := tr.AddReply("m1", msg("m1b", "second reply")); err != nil {
		t.Fatalf("AddReply: %v", err)
	}
	if err := tr.AddReply("m1a", msg("m1a1", "nested")); err != nil {
		t.Fatalf("AddReply: %v", err)
	}
	return tr
}

func TestReplyParentInvariant(t *testing.T) {
	tr := buildSample(t)
	if err := tr.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	m1, _ := tr.Get("m1")
	for _, r := range m1.Replies {
		if r.ParentID != "m1" {
			t.Fatalf("reply %s has parent_id %q", r.ID, r.ParentID)
		}
	}
	// replies keep arrival order
	if m1.Replies[0].ID != "m1a" || m1.Replies[1].ID != "m1b" {
		t.Fatalf("reply order changed: %s %s", m1.Replies[0].ID, m1.Replies[1].ID)
	}
}

func TestAddReplyUnknownParent(t *testing.T) {
	tr := buildSample(t)
	before := tr.Len()
	err := tr.AddReply("missing-id", msg("x", "orphan"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if tr.Len() != before {
		t.Fatalf("tree mutated on failed AddReply: %d -> %d", before, tr.Len())
	}
	if err := tr.Verify(); err != nil {
		t.Fatalf("Verify after failed AddReply: %v", err)
	}
}

func TestEdit(t *testing.T) {
	tr := buildSample(t)
	if err := tr.Edit("m1a1", "rewritten"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	m, _ := tr.Get("m1a1")
	if m.Content != "rewritten" {
		t.Fatalf("content not replaced: %q", m.Content)
	}
	if err := tr.Edit("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	tr := buildSample(t)
	// m1 has descendants m1a, m1b, m1a1 -> 4 removed in total
	removed, err := tr.Delete("m1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 removed, got %d", removed)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", tr.Len())
	}
	if _, ok := tr.Get("m1a1"); ok {
		t.Fatal("descendant survived cascade")
	}
	if err := tr.Verify(); err != nil {
		t.Fatalf("Verify after delete: %v", err)
	}
	if _, err := tr.Delete("m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteNestedReply(t *testing.T) {
	tr := buildSample(t)
	removed, err := tr.Delete("m1a")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed (m1a + m1a1), got %d", removed)
	}
	m1, _ := tr.Get("m1")
	if len(m1.Replies) != 1 || m1.Replies[0].ID != "m1b" {
		t.Fatalf("sibling order broken: %+v", m1.Replies)
	}
}

func TestDepthPolicy(t *testing.T) {
	tr := buildSample(t)
	if d := tr.Depth("m1"); d != 0 {
		t.Fatalf("root depth %d", d)
	}
	if d := tr.Depth("m1a1"); d != 2 {
		t.Fatalf("nested depth %d", d)
	}
	if !tr.CanReply("m1a1") {
		t.Fatal("depth 2 should still offer reply")
	}
	if err := tr.AddReply("m1a1", msg("m1a1a", "deepest offered")); err != nil {
		t.Fatalf("AddReply: %v", err)
	}
	if tr.CanReply("m1a1a") {
		t.Fatal("depth 3 must withhold the reply affordance")
	}
	// the data model itself does not enforce the cap
	if err := tr.AddReply("m1a1a", msg("deep", "beyond policy")); err != nil {
		t.Fatalf("AddReply beyond policy depth: %v", err)
	}
}

func TestFlattenBuildRoundTrip(t *testing.T) {
	tr := buildSample(t)
	flat := Flatten(tr.Conversation())
	if len(flat) != tr.Len() {
		t.Fatalf("flatten length %d, tree %d", len(flat), tr.Len())
	}

	rebuilt := &models.Conversation{ID: "c1"}
	tr2, repaired := Build(rebuilt, flat)
	if repaired != 0 {
		t.Fatalf("unexpected repairs: %d", repaired)
	}
	if err := tr2.Verify(); err != nil {
		t.Fatalf("Verify rebuilt: %v", err)
	}
	if tr2.Len() != tr.Len() {
		t.Fatalf("rebuilt %d messages, want %d", tr2.Len(), tr.Len())
	}
	m1, _ := tr2.Get("m1")
	if len(m1.Replies) != 2 || m1.Replies[0].ID != "m1a" {
		t.Fatalf("rebuilt reply order: %+v", m1.Replies)
	}
}

func TestBuildRepairsDanglingParent(t *testing.T) {
	conv := &models.Conversation{ID: "c1"}
	flat := []models.Message{
		{ID: "a", Role: models.RoleUser, Content: "ok"},
		{ID: "b", ParentID: "ghost", Role: models.RoleAssistant, Content: "orphan"},
	}
	tr, repaired := Build(conv, flat)
	if repaired != 1 {
		t.Fatalf("expected 1 repair, got %d", repaired)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("orphan not recovered at top level: %d roots", len(conv.Messages))
	}
	if err := tr.Verify(); err != nil {
		t.Fatalf("Verify after repair: %v", err)
	}
}
