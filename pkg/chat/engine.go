// Package chat orchestrates conversation turns: it persists user
// messages, streams the provider reply through an ingest buffer, and
// attaches the finished assistant message to the reply forest.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"loom/pkg/artifact"
	"loom/pkg/logger"
	"loom/pkg/models"
	"loom/pkg/provider"
	"loom/pkg/store"
	"loom/pkg/stream"
	"loom/pkg/thread"
	"loom/pkg/utils"
)

// ErrBusy reports that a generation is already in flight for the
// conversation. Submissions are rejected, not queued.
var ErrBusy = errors.New("generation already in progress")

// ErrNotFound aliases the store sentinel so callers can match either.
var ErrNotFound = store.ErrNotFound

// DefaultFallback is inserted as assistant content when a generation
// fails before producing any text.
const DefaultFallback = "Sorry, something went wrong while generating a response."

// Engine coordinates all conversation mutations. Per-conversation locks
// serialize read-modify-write cycles against the store; the inflight set
// rejects concurrent turns for the same conversation.
type Engine struct {
	prov     provider.Provider
	fallback string

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]struct{}
	sessions map[string]*stream.Session
}

// New builds an engine over the given provider. An empty fallback selects
// DefaultFallback.
func New(prov provider.Provider, fallback string) *Engine {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Engine{
		prov:     prov,
		fallback: fallback,
		locks:    make(map[string]*sync.Mutex),
		inflight: make(map[string]struct{}),
		sessions: make(map[string]*stream.Session),
	}
}

func (e *Engine) lockConv(convID string) func() {
	e.mu.Lock()
	l, ok := e.locks[convID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[convID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (e *Engine) session(convID string) *stream.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[convID]
	if !ok {
		s = &stream.Session{}
		e.sessions[convID] = s
	}
	return s
}

// CreateConversation creates and persists an empty conversation.
func (e *Engine) CreateConversation(title string) (models.Conversation, error) {
	now := time.Now().UTC().UnixNano()
	conv := models.Conversation{
		ID:        utils.GenConversationID(),
		Title:     title,
		CreatedTS: now,
		UpdatedTS: now,
	}
	conv.Slug = utils.MakeSlug(title, conv.ID)
	if err := store.SaveConversation(conv); err != nil {
		return models.Conversation{}, err
	}
	logger.Log.Info("conversation_created", zap.String("conversation", conv.ID), zap.String("title", title))
	return conv, nil
}

// Conversation loads a conversation with its full reply forest.
func (e *Engine) Conversation(convID string) (*models.Conversation, error) {
	conv, err := store.GetConversationMeta(convID)
	if err != nil {
		return nil, err
	}
	flat, err := store.ListMessages(convID)
	if err != nil {
		return nil, err
	}
	_, repaired := thread.Build(&conv, flat)
	if repaired > 0 {
		logger.Log.Warn("repaired_dangling_parents", zap.String("conversation", convID), zap.Int("count", repaired))
	}
	return &conv, nil
}

// ListConversations returns metadata for every stored conversation.
func (e *Engine) ListConversations() ([]models.Conversation, error) {
	return store.ListConversations()
}

// DeleteConversation removes a conversation and abandons any in-flight
// stream so late fragments are discarded.
func (e *Engine) DeleteConversation(convID string) error {
	unlock := e.lockConv(convID)
	defer unlock()
	if err := store.DeleteConversation(convID); err != nil {
		return err
	}
	e.session(convID).Abandon()
	return nil
}

// PostMessage appends a user message, at top level when parentID is empty
// or as a reply otherwise. Unknown conversation or parent ids surface
// ErrNotFound without mutating anything.
func (e *Engine) PostMessage(convID, parentID, content string) (*models.Message, error) {
	unlock := e.lockConv(convID)
	defer unlock()
	return e.postLocked(convID, parentID, content)
}

func (e *Engine) postLocked(convID, parentID, content string) (*models.Message, error) {
	conv, err := store.GetConversationMeta(convID)
	if err != nil {
		return nil, err
	}
	flat, err := store.ListMessages(convID)
	if err != nil {
		return nil, err
	}
	t, _ := thread.Build(&conv, flat)

	msg := &models.Message{
		ID:           utils.GenID(),
		Conversation: convID,
		Role:         models.RoleUser,
		Content:      content,
		TS:           time.Now().UTC().UnixNano(),
		Status:       models.StatusOK,
		Artifacts:    artifact.Extract(content),
	}
	if parentID == "" {
		t.AddRoot(msg)
	} else if err := t.AddReply(parentID, msg); err != nil {
		return nil, ErrNotFound
	}
	if err := store.SaveMessage(convID, *msg); err != nil {
		return nil, err
	}
	if err := e.touch(conv); err != nil {
		return nil, err
	}
	logger.Log.Debug("message_posted", zap.String("conversation", convID), zap.String("msg_id", msg.ID), zap.String("parent", parentID))
	return msg, nil
}

// EditMessage replaces the content of a message and recomputes its
// derived artifacts. The whole message record set is rewritten since the
// store is append-only per record.
func (e *Engine) EditMessage(convID, msgID, content string) (*models.Message, error) {
	unlock := e.lockConv(convID)
	defer unlock()

	conv, err := store.GetConversationMeta(convID)
	if err != nil {
		return nil, err
	}
	flat, err := store.ListMessages(convID)
	if err != nil {
		return nil, err
	}
	t, _ := thread.Build(&conv, flat)
	if err := t.Edit(msgID, content); err != nil {
		return nil, ErrNotFound
	}
	msg, _ := t.Get(msgID)
	msg.Artifacts = artifact.Extract(content)
	if err := store.ReplaceMessages(convID, thread.Flatten(&conv)); err != nil {
		return nil, err
	}
	if err := e.touch(conv); err != nil {
		return nil, err
	}
	logger.Log.Debug("message_edited", zap.String("conversation", convID), zap.String("msg_id", msgID))
	return msg, nil
}

// DeleteMessage removes a message and its entire reply subtree, returning
// how many messages were removed.
func (e *Engine) DeleteMessage(convID, msgID string) (int, error) {
	unlock := e.lockConv(convID)
	defer unlock()

	conv, err := store.GetConversationMeta(convID)
	if err != nil {
		return 0, err
	}
	flat, err := store.ListMessages(convID)
	if err != nil {
		return 0, err
	}
	t, _ := thread.Build(&conv, flat)
	removed, err := t.Delete(msgID)
	if err != nil {
		return 0, ErrNotFound
	}
	if err := store.ReplaceMessages(convID, thread.Flatten(&conv)); err != nil {
		return 0, err
	}
	if err := e.touch(conv); err != nil {
		return 0, err
	}
	logger.Log.Info("message_deleted", zap.String("conversation", convID), zap.String("msg_id", msgID), zap.Int("removed", removed))
	return removed, nil
}

// Turn submits a user message and generates the assistant reply,
// delivering fragments to obs as they accumulate. The assistant message
// is attached as a reply to the submitted user message. A failed
// generation still yields a persisted assistant message, tagged failed,
// carrying whatever text arrived before the error (or the fallback text
// when nothing did).
//
// Exactly one turn may be in flight per conversation; concurrent
// submissions get ErrBusy.
func (e *Engine) Turn(ctx context.Context, convID, parentID, content string, obs stream.Observer) (*models.Message, *models.Message, error) {
	e.mu.Lock()
	if _, busy := e.inflight[convID]; busy {
		e.mu.Unlock()
		return nil, nil, ErrBusy
	}
	e.inflight[convID] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, convID)
		e.mu.Unlock()
	}()

	unlock := e.lockConv(convID)
	userMsg, err := e.postLocked(convID, parentID, content)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	history := e.historyLocked(convID)
	unlock()

	sess := e.session(convID)
	buf, gen := sess.Begin()
	if obs != nil {
		buf.Subscribe(obs)
	}

	streamErr := e.prov.Stream(ctx, history, func(fragment string) error {
		if _, ok := sess.Append(gen, fragment); !ok {
			return stream.ErrFinalized
		}
		return nil
	})

	assistant := &models.Message{
		ID:           utils.GenID(),
		Conversation: convID,
		Role:         models.RoleAssistant,
		TS:           time.Now().UTC().UnixNano(),
		Status:       models.StatusOK,
	}
	if streamErr != nil {
		sess.Fail(gen, streamErr)
		assistant.Status = models.StatusFailed
		assistant.FailReason = streamErr.Error()
		assistant.Content = buf.Text()
		if assistant.Content == "" {
			assistant.Content = e.fallback
		}
		logger.Log.Error("turn_failed", zap.String("conversation", convID), zap.Error(streamErr))
	} else {
		text, ok := sess.Finalize(gen)
		if !ok {
			// superseded while draining; the late result is dropped
			return userMsg, nil, nil
		}
		assistant.Content = text
	}
	assistant.Artifacts = artifact.Extract(assistant.Content)

	unlock = e.lockConv(convID)
	defer unlock()
	conv, err := store.GetConversationMeta(convID)
	if err != nil {
		return userMsg, nil, err
	}
	flat, err := store.ListMessages(convID)
	if err != nil {
		return userMsg, nil, err
	}
	t, _ := thread.Build(&conv, flat)
	if err := t.AddReply(userMsg.ID, assistant); err != nil {
		// user message was deleted mid-turn; drop the reply
		logger.Log.Warn("turn_parent_vanished", zap.String("conversation", convID), zap.String("parent", userMsg.ID))
		return userMsg, nil, nil
	}
	if err := store.SaveMessage(convID, *assistant); err != nil {
		return userMsg, nil, err
	}
	if err := e.touch(conv); err != nil {
		return userMsg, nil, err
	}
	logger.Log.Info("turn_completed",
		zap.String("conversation", convID),
		zap.String("msg_id", assistant.ID),
		zap.String("status", string(assistant.Status)),
		zap.Int("chars", len(assistant.Content)))
	return userMsg, assistant, nil
}

// Busy reports whether a turn is currently in flight for the conversation.
func (e *Engine) Busy(convID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inflight[convID]
	return busy
}

// historyLocked flattens the conversation into the provider message list.
// Caller holds the conversation lock.
func (e *Engine) historyLocked(convID string) []provider.Message {
	flat, err := store.ListMessages(convID)
	if err != nil {
		logger.Log.Warn("history_load_failed", zap.String("conversation", convID), zap.Error(err))
		return nil
	}
	out := make([]provider.Message, 0, len(flat))
	for _, m := range flat {
		if m.Status == models.StatusFailed {
			continue
		}
		out = append(out, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// touch bumps the conversation's UpdatedTS.
func (e *Engine) touch(conv models.Conversation) error {
	conv.UpdatedTS = time.Now().UTC().UnixNano()
	conv.Messages = nil
	return store.SaveConversation(conv)
}
