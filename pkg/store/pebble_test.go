package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble"

	"loom/pkg/models"
)

func openTemp(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestConversationRoundTrip(t *testing.T) {
	openTemp(t)
	conv := models.Conversation{ID: "conv-1", Title: "First", Slug: "first-1", CreatedTS: 100, UpdatedTS: 100}
	if err := SaveConversation(conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := GetConversationMeta("conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "First" || got.Slug != "first-1" {
		t.Fatalf("unexpected meta: %+v", got)
	}
	if got.Messages != nil {
		t.Fatal("meta must not embed messages")
	}
}

func TestGetConversationMetaNotFound(t *testing.T) {
	openTemp(t)
	if _, err := GetConversationMeta("conv-absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMessagesPreserveOrder(t *testing.T) {
	openTemp(t)
	for i := 0; i < 5; i++ {
		m := models.Message{ID: fmt.Sprintf("msg-%d", i), Conversation: "conv-1", Role: models.RoleUser, Content: fmt.Sprintf("body %d", i)}
		if err := SaveMessage("conv-1", m); err != nil {
			t.Fatalf("save message %d: %v", i, err)
		}
	}
	msgs, err := ListMessages("conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("want 5 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("order broken at %d: %s", i, m.ID)
		}
	}
}

func TestReplaceMessages(t *testing.T) {
	openTemp(t)
	for i := 0; i < 3; i++ {
		if err := SaveMessage("conv-1", models.Message{ID: fmt.Sprintf("old-%d", i)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	repl := []models.Message{{ID: "new-0"}, {ID: "new-1"}}
	if err := ReplaceMessages("conv-1", repl); err != nil {
		t.Fatalf("replace: %v", err)
	}
	msgs, err := ListMessages("conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "new-0" || msgs[1].ID != "new-1" {
		t.Fatalf("unexpected records: %+v", msgs)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	openTemp(t)
	if err := SaveConversation(models.Conversation{ID: "conv-1"}); err != nil {
		t.Fatalf("save conv: %v", err)
	}
	if err := SaveConversation(models.Conversation{ID: "conv-2"}); err != nil {
		t.Fatalf("save conv: %v", err)
	}
	if err := SaveMessage("conv-1", models.Message{ID: "m1"}); err != nil {
		t.Fatalf("save msg: %v", err)
	}
	if err := SaveMessage("conv-2", models.Message{ID: "m2"}); err != nil {
		t.Fatalf("save msg: %v", err)
	}
	if err := DeleteConversation("conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetConversationMeta("conv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("meta should be gone, got %v", err)
	}
	msgs, err := ListMessages("conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages should be gone, got %d", len(msgs))
	}
	// neighbour conversation untouched
	msgs, err = ListMessages("conv-2")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("conv-2 damaged: %v %d", err, len(msgs))
	}
	if err := DeleteConversation("conv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}

func TestListConversations(t *testing.T) {
	openTemp(t)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("conv-%d", i)
		if err := SaveConversation(models.Conversation{ID: id, Title: id}); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := SaveMessage(id, models.Message{ID: "m"}); err != nil {
			t.Fatalf("save msg: %v", err)
		}
	}
	convs, err := ListConversations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("want 3 conversations, got %d", len(convs))
	}
}

func TestRawKeyHelpers(t *testing.T) {
	openTemp(t)
	if err := SaveKey("misc:checkpoint", []byte("42")); err != nil {
		t.Fatalf("save key: %v", err)
	}
	v, err := GetKey("misc:checkpoint")
	if err != nil || string(v) != "42" {
		t.Fatalf("get key: %q %v", v, err)
	}
	if _, err := GetKey("misc:absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	keys, err := ListKeys("misc:")
	if err != nil || len(keys) != 1 || keys[0] != "misc:checkpoint" {
		t.Fatalf("list keys: %v %v", keys, err)
	}
}

func TestGetConversationMetaMalformedIsNotFound(t *testing.T) {
	openTemp(t)
	if err := db.Set(metaKey("conv-bad"), []byte("{not json"), pebble.Sync); err != nil {
		t.Fatalf("plant bad meta: %v", err)
	}
	if _, err := GetConversationMeta("conv-bad"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for malformed meta, got %v", err)
	}
}

func TestListMessagesSkipsMalformed(t *testing.T) {
	openTemp(t)
	if err := SaveMessage("conv-1", models.Message{ID: "good"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	key := fmt.Sprintf("conv:%s:msg:%020d-%06d", "conv-1", int64(1), 1)
	if err := db.Set([]byte(key), []byte("{not json"), pebble.Sync); err != nil {
		t.Fatalf("plant bad record: %v", err)
	}
	msgs, err := ListMessages("conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "good" {
		t.Fatalf("malformed record should be skipped: %+v", msgs)
	}
}
