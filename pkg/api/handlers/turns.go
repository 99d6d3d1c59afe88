package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"go.uber.org/zap"

	"loom/pkg/logger"
	"loom/pkg/models"
	"loom/pkg/utils"
	"loom/pkg/validation"
)

// turnResult carries the outcome of an engine turn across goroutines.
type turnResult struct {
	user      *models.Message
	assistant *models.Message
	err       error
}

// progressFeed hands the newest accumulated text from the stream observer
// to the response writer without ever blocking the producer: an unconsumed
// snapshot is replaced by the newer one. The accumulated text only grows,
// so the writer recovers every byte by diffing against what it already
// sent, even when a slow client skips intermediate snapshots.
type progressFeed struct{ ch chan string }

func newProgressFeed() *progressFeed {
	return &progressFeed{ch: make(chan string, 1)}
}

// Push replaces any pending snapshot with total. Safe for a single
// producer; never blocks.
func (p *progressFeed) Push(total string) {
	for {
		select {
		case p.ch <- total:
			return
		default:
			select {
			case <-p.ch:
			default:
			}
		}
	}
}

// Close ends the feed. Call only after the last Push.
func (p *progressFeed) Close() { close(p.ch) }

// createTurn handles POST /conversations/{id}/turns. It submits a user
// message and streams the assistant reply as server-sent events:
//
//	event: fragment   data: {"text": "..."}        (new text since last event)
//	event: message    data: <assistant message>    (once, on completion)
//
// Errors that occur before any fragment is produced are reported as a
// plain JSON response (409 when a turn is already in flight, 404 for an
// unknown conversation or parent). Later failures still finish the SSE
// stream with a message event carrying a failed assistant message.
func (a *API) createTurn(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		ParentID string `json:"parent_id"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateContent(req.Content); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	feed := newProgressFeed()
	resc := make(chan turnResult, 1)
	go func() {
		user, assistant, err := a.Engine.Turn(r.Context(), id, req.ParentID, req.Content,
			func(fragment, total string) { feed.Push(total) })
		feed.Close()
		resc <- turnResult{user: user, assistant: assistant, err: err}
	}()

	// Hold the response open until the first fragment so pre-stream
	// failures can use a proper status code.
	started := false
	startStream := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	writeFragment := func(text string) {
		b, _ := json.Marshal(map[string]string{"text": text})
		_, _ = w.Write([]byte("event: fragment\ndata: "))
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	written := 0
	for total := range feed.ch {
		if len(total) <= written {
			continue
		}
		if !started {
			startStream()
		}
		writeFragment(total[written:])
		written = len(total)
	}
	res := <-resc

	if res.err != nil {
		if started {
			// stream already open; report inline and end it
			b, _ := json.Marshal(map[string]string{"error": res.err.Error()})
			_, _ = w.Write([]byte("event: error\ndata: "))
			_, _ = w.Write(b)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
			return
		}
		writeEngineError(w, res.err)
		return
	}
	if !started {
		startStream()
	}
	if res.assistant != nil {
		b, err := json.Marshal(res.assistant)
		if err != nil {
			logger.Log.Error("turn_encode_failed", zap.String("conversation", id), zap.Error(err))
			return
		}
		_, _ = w.Write([]byte("event: message\ndata: "))
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
