package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"loom/pkg/models"
	"loom/pkg/provider"
	"loom/pkg/provider/testutil"
	"loom/pkg/store"
	"loom/pkg/stream"
)

func openTemp(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestCreateAndLoadConversation(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider(), "")
	conv, err := e.CreateConversation("My Chat")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID == "" || conv.Slug == "" {
		t.Fatalf("ids not assigned: %+v", conv)
	}
	got, err := e.Conversation(conv.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Title != "My Chat" || len(got.Messages) != 0 {
		t.Fatalf("unexpected conversation: %+v", got)
	}
}

func TestPostMessageUnknownConversation(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider(), "")
	if _, err := e.PostMessage("conv-absent", "", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostMessageUnknownParent(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider(), "")
	conv, _ := e.CreateConversation("t")
	if _, err := e.PostMessage(conv.ID, "msg-ghost", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	got, _ := e.Conversation(conv.ID)
	if len(got.Messages) != 0 {
		t.Fatal("failed reply must not mutate the conversation")
	}
}

func TestTurnAttachesAssistantReply(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider("Hello", ", ", "world"), "")
	conv, _ := e.CreateConversation("t")

	var mu sync.Mutex
	var fragments []string
	user, assistant, err := e.Turn(context.Background(), conv.ID, "", "hi there", func(fragment, total string) {
		mu.Lock()
		fragments = append(fragments, fragment)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if assistant == nil || assistant.Content != "Hello, world" {
		t.Fatalf("assistant: %+v", assistant)
	}
	if assistant.ParentID != user.ID {
		t.Fatalf("assistant should reply to the user message: %q vs %q", assistant.ParentID, user.ID)
	}
	if assistant.Status != models.StatusOK {
		t.Fatalf("status: %q", assistant.Status)
	}
	mu.Lock()
	n := len(fragments)
	mu.Unlock()
	if n != 3 {
		t.Fatalf("want 3 observed fragments, got %d", n)
	}

	got, _ := e.Conversation(conv.ID)
	if len(got.Messages) != 1 || len(got.Messages[0].Replies) != 1 {
		t.Fatalf("persisted forest wrong: %+v", got.Messages)
	}
	if got.Messages[0].Replies[0].Content != "Hello, world" {
		t.Fatalf("persisted content: %q", got.Messages[0].Replies[0].Content)
	}
}

func TestTurnExtractsArtifacts(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider("```go\nfunc main() {}\n```"), "")
	conv, _ := e.CreateConversation("t")
	_, assistant, err := e.Turn(context.Background(), conv.ID, "", "write code", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if len(assistant.Artifacts) != 1 {
		t.Fatalf("want 1 artifact, got %d", len(assistant.Artifacts))
	}
	a := assistant.Artifacts[0]
	if a.ID != "code-0" || a.Language != "go" || a.Title != "Code Block 1" {
		t.Fatalf("artifact: %+v", a)
	}
}

func TestTurnFailurePreservesPartialText(t *testing.T) {
	openTemp(t)
	boom := errors.New("connection reset")
	mock := testutil.NewMockProvider()
	mock.StreamFunc = func(ctx context.Context, messages []provider.Message, cb provider.StreamCallback) error {
		_ = cb("partial ")
		_ = cb("answer")
		return boom
	}
	e := New(mock, "")
	conv, _ := e.CreateConversation("t")
	_, assistant, err := e.Turn(context.Background(), conv.ID, "", "hi", nil)
	if err != nil {
		t.Fatalf("turn should not error for provider failure: %v", err)
	}
	if assistant.Status != models.StatusFailed {
		t.Fatalf("status: %q", assistant.Status)
	}
	if assistant.Content != "partial answer" {
		t.Fatalf("partial text lost: %q", assistant.Content)
	}
	if assistant.FailReason == "" {
		t.Fatal("fail reason should be recorded")
	}
}

func TestTurnFailureFallsBackWhenEmpty(t *testing.T) {
	openTemp(t)
	mock := testutil.NewMockProvider()
	mock.Err = errors.New("upstream 500")
	e := New(mock, "custom fallback")
	conv, _ := e.CreateConversation("t")
	_, assistant, err := e.Turn(context.Background(), conv.ID, "", "hi", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if assistant.Content != "custom fallback" {
		t.Fatalf("fallback content: %q", assistant.Content)
	}
}

func TestTurnRejectsConcurrentSubmission(t *testing.T) {
	openTemp(t)
	release := make(chan struct{})
	started := make(chan struct{})
	mock := testutil.NewMockProvider()
	mock.StreamFunc = func(ctx context.Context, messages []provider.Message, cb provider.StreamCallback) error {
		close(started)
		<-release
		return cb("done")
	}
	e := New(mock, "")
	conv, _ := e.CreateConversation("t")

	errc := make(chan error, 1)
	go func() {
		_, _, err := e.Turn(context.Background(), conv.ID, "", "first", nil)
		errc <- err
	}()
	<-started
	if !e.Busy(conv.ID) {
		t.Fatal("conversation should be busy")
	}
	if _, _, err := e.Turn(context.Background(), conv.ID, "", "second", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if e.Busy(conv.ID) {
		t.Fatal("busy flag should clear")
	}
}

func TestTurnHistoryIncludesPriorMessages(t *testing.T) {
	openTemp(t)
	mock := testutil.NewMockProvider("reply")
	e := New(mock, "")
	conv, _ := e.CreateConversation("t")
	if _, _, err := e.Turn(context.Background(), conv.ID, "", "first question", nil); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if _, _, err := e.Turn(context.Background(), conv.ID, "", "second question", nil); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("want 2 provider calls, got %d", len(calls))
	}
	last := calls[1]
	// first user message, first assistant reply, second user message
	if len(last) != 3 {
		t.Fatalf("history length: %d (%+v)", len(last), last)
	}
	if last[1].Role != "assistant" || last[1].Content != "reply" {
		t.Fatalf("history[1]: %+v", last[1])
	}
}

func TestEditRecomputesArtifacts(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider(), "")
	conv, _ := e.CreateConversation("t")
	msg, err := e.PostMessage(conv.ID, "", "plain text")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(msg.Artifacts) != 0 {
		t.Fatalf("unexpected artifacts: %+v", msg.Artifacts)
	}
	edited, err := e.EditMessage(conv.ID, msg.ID, "```py\nprint(1)\n```")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(edited.Artifacts) != 1 || edited.Artifacts[0].Language != "py" {
		t.Fatalf("artifacts not recomputed: %+v", edited.Artifacts)
	}
	if _, err := e.EditMessage(conv.ID, "msg-ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteMessageCascades(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider("reply"), "")
	conv, _ := e.CreateConversation("t")
	user, _, err := e.Turn(context.Background(), conv.ID, "", "q", nil)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	removed, err := e.DeleteMessage(conv.ID, user.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("want cascade of 2, got %d", removed)
	}
	got, _ := e.Conversation(conv.ID)
	if len(got.Messages) != 0 {
		t.Fatalf("messages should be gone: %+v", got.Messages)
	}
	if _, err := e.DeleteMessage(conv.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be NotFound, got %v", err)
	}
}

func TestDeleteConversationAbandonsStream(t *testing.T) {
	openTemp(t)
	e := New(testutil.NewMockProvider(), "")
	conv, _ := e.CreateConversation("t")
	sess := e.session(conv.ID)
	buf, gen := sess.Begin()
	sess.Append(gen, "dangling")
	if err := e.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !buf.Done() {
		t.Fatal("in-flight buffer should be sealed on delete")
	}
	if !errors.Is(buf.Err(), stream.ErrFinalized) {
		t.Fatalf("abandoned buffer error: %v", buf.Err())
	}
	if _, ok := sess.Append(gen, "late"); ok {
		t.Fatal("late fragment should be discarded")
	}
}
