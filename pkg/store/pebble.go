package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"loom/pkg/logger"
	"loom/pkg/models"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

// dbPath remembers where the DB was opened, for size accounting.
var dbPath string

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("store: not found")

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return err
	}
	dbPath = path
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Log.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func metaKey(convID string) []byte {
	return []byte("conv:" + convID + ":meta")
}

func msgPrefix(convID string) []byte {
	return []byte("conv:" + convID + ":msg:")
}

// SaveConversation stores conversation metadata under its reserved key.
// Messages are persisted separately; the stored meta never embeds them.
func SaveConversation(conv models.Conversation) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	conv.Messages = nil
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := db.Set(metaKey(conv.ID), data, pebble.Sync); err != nil {
		logger.Log.Error("save_conversation_failed", zap.String("conversation", conv.ID), zap.Error(err))
		return err
	}
	writesTotal.WithLabelValues("conversation").Inc()
	logger.Log.Debug("conversation_saved", zap.String("conversation", conv.ID))
	return nil
}

// GetConversationMeta returns the stored metadata for a conversation, with
// its Messages field left nil.
func GetConversationMeta(convID string) (models.Conversation, error) {
	var conv models.Conversation
	if db == nil {
		return conv, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(metaKey(convID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return conv, ErrNotFound
		}
		return conv, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &conv); err != nil {
		// undecodable meta is treated as absent, same as the list paths
		logger.Log.Warn("skipping_malformed_conversation", zap.String("conversation", convID), zap.Error(err))
		return models.Conversation{}, ErrNotFound
	}
	return conv, nil
}

// ListConversations returns metadata for all stored conversations.
func ListConversations() ([]models.Conversation, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("conv:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var conv models.Conversation
		if err := json.Unmarshal(iter.Value(), &conv); err != nil {
			logger.Log.Warn("skipping_malformed_conversation", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		out = append(out, conv)
	}
	return out, iter.Error()
}

// SaveMessage appends a message record to a conversation by inserting a
// new key with a sortable timestamp prefix. Records are ordered by
// insertion time, which preserves arrival order on replay.
func SaveMessage(convID string, msg models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	msg.Replies = nil
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, s)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Log.Error("save_message_failed", zap.String("conversation", convID), zap.String("key", key), zap.Error(err))
		return err
	}
	writesTotal.WithLabelValues("message").Inc()
	logger.Log.Debug("message_saved", zap.String("conversation", convID), zap.String("msg_id", msg.ID))
	return nil
}

// ListMessages returns all message records for a conversation in
// insertion order. Malformed records are skipped rather than failing the
// whole read.
func ListMessages(convID string) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := msgPrefix(convID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Log.Warn("skipping_malformed_message", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// ReplaceMessages rewrites the message records for a conversation with the
// given flat slice, preserving its order. Used after edits and deletes,
// which cannot be expressed as appends.
func ReplaceMessages(convID string, flat []models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	batch := db.NewBatch()
	defer batch.Close()
	prefix := msgPrefix(convID)
	if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return err
	}
	ts := time.Now().UTC().UnixNano()
	for _, m := range flat {
		m.Replies = nil
		s := atomic.AddUint64(&seq, 1)
		key := fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, s)
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := batch.Set([]byte(key), data, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Log.Error("replace_messages_failed", zap.String("conversation", convID), zap.Error(err))
		return err
	}
	writesTotal.WithLabelValues("replace").Inc()
	logger.Log.Debug("messages_replaced", zap.String("conversation", convID), zap.Int("count", len(flat)))
	return nil
}

// DeleteConversation removes the conversation metadata and all of its
// message records.
func DeleteConversation(convID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if _, err := GetConversationMeta(convID); err != nil {
		return err
	}
	batch := db.NewBatch()
	defer batch.Close()
	prefix := msgPrefix(convID)
	if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return err
	}
	if err := batch.Delete(metaKey(convID), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Log.Error("delete_conversation_failed", zap.String("conversation", convID), zap.Error(err))
		return err
	}
	deletesTotal.Inc()
	logger.Log.Info("conversation_deleted", zap.String("conversation", convID))
	return nil
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, for use as a DeleteRange upper bound.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// SaveKey stores a raw value under an arbitrary key.
func SaveKey(key string, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Set([]byte(key), value, pebble.Sync)
}

// GetKey returns the raw value stored under key, or ErrNotFound.
func GetKey(key string) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
		return out, iter.Error()
	}
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}
