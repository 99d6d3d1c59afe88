package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"loom/pkg/models"
	"loom/pkg/provider"
	"loom/pkg/provider/testutil"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	defer resp.Body.Close()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read sse: %v", err)
	}
	return events
}

func TestTurnStreamsFragmentsAndFinalMessage(t *testing.T) {
	srv := newTestServer(t, testutil.NewMockProvider("Hel", "lo, ", "world"))
	conv := decode[models.Conversation](t, postJSON(t, srv.URL+"/v1/conversations", `{"title":"t"}`))

	resp := postJSON(t, srv.URL+"/v1/conversations/"+conv.ID+"/turns", `{"content":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("turn status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	events := readSSE(t, resp)

	var texts []string
	var final *models.Message
	for _, ev := range events {
		switch ev.name {
		case "fragment":
			var f struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(ev.data), &f); err != nil {
				t.Fatalf("fragment data: %v", err)
			}
			texts = append(texts, f.Text)
		case "message":
			var m models.Message
			if err := json.Unmarshal([]byte(ev.data), &m); err != nil {
				t.Fatalf("message data: %v", err)
			}
			final = &m
		}
	}
	if strings.Join(texts, "") != "Hello, world" {
		t.Fatalf("fragments: %q", texts)
	}
	if final == nil || final.Content != "Hello, world" || final.Role != models.RoleAssistant {
		t.Fatalf("final message: %+v", final)
	}
}

func TestProgressFeedNeverBlocksProducer(t *testing.T) {
	feed := newProgressFeed()
	total := ""
	// no consumer: every Push must return immediately, replacing the
	// pending snapshot
	for i := 0; i < 1000; i++ {
		total += "x"
		feed.Push(total)
	}
	select {
	case got := <-feed.ch:
		if got != total {
			t.Fatalf("pending snapshot is %d bytes, want newest (%d)", len(got), len(total))
		}
	default:
		t.Fatal("no snapshot pending after pushes")
	}
	feed.Close()
	if _, ok := <-feed.ch; ok {
		t.Fatal("feed should be drained and closed")
	}
}

func TestTurnUnknownConversationIs404(t *testing.T) {
	srv := newTestServer(t, testutil.NewMockProvider("x"))
	resp := postJSON(t, srv.URL+"/v1/conversations/conv-ghost/turns", `{"content":"hi"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestTurnBusyIs409(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mock := testutil.NewMockProvider()
	mock.StreamFunc = func(ctx context.Context, messages []provider.Message, cb provider.StreamCallback) error {
		close(started)
		<-release
		return cb("done")
	}
	srv := newTestServer(t, mock)
	conv := decode[models.Conversation](t, postJSON(t, srv.URL+"/v1/conversations", `{"title":"t"}`))
	url := srv.URL + "/v1/conversations/" + conv.ID + "/turns"

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Post(url, "application/json", strings.NewReader(`{"content":"first"}`))
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-started

	resp := postJSON(t, url, `{"content":"second"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy status: %d", resp.StatusCode)
	}
	close(release)
	<-done
}

func TestTurnProviderFailureStillDeliversMessage(t *testing.T) {
	mock := testutil.NewMockProvider("partial")
	mock.Err = contextDeadline{}
	srv := newTestServer(t, mock)
	conv := decode[models.Conversation](t, postJSON(t, srv.URL+"/v1/conversations", `{"title":"t"}`))

	resp := postJSON(t, srv.URL+"/v1/conversations/"+conv.ID+"/turns", `{"content":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	events := readSSE(t, resp)
	var final *models.Message
	for _, ev := range events {
		if ev.name == "message" {
			var m models.Message
			if err := json.Unmarshal([]byte(ev.data), &m); err != nil {
				t.Fatalf("message data: %v", err)
			}
			final = &m
		}
	}
	if final == nil {
		t.Fatal("no final message event")
	}
	if final.Status != models.StatusFailed || final.Content != "partial" {
		t.Fatalf("final: %+v", final)
	}
}

type contextDeadline struct{}

func (contextDeadline) Error() string { return "deadline exceeded" }
