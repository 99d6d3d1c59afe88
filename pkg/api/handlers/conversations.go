// Package handlers implements the versioned HTTP API over the chat
// engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"loom/pkg/chat"
	"loom/pkg/models"
	"loom/pkg/utils"
	"loom/pkg/validation"
)

// API binds the HTTP routes to a chat engine.
type API struct {
	Engine *chat.Engine
}

// Register attaches all conversation routes to the provided router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/conversations", a.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)

	r.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", a.deleteConversation).Methods(http.MethodDelete)

	r.HandleFunc("/conversations/{id}/messages", a.createMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages/{msgID}", a.updateMessage).Methods(http.MethodPut)
	r.HandleFunc("/conversations/{id}/messages/{msgID}", a.deleteMessage).Methods(http.MethodDelete)

	r.HandleFunc("/conversations/{id}/turns", a.createTurn).Methods(http.MethodPost)
}

// createConversation handles POST /conversations.
func (a *API) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateTitle(req.Title); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	conv, err := a.Engine.CreateConversation(req.Title)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, conv)
}

// listConversations handles GET /conversations.
func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := a.Engine.ListConversations()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: convs})
}

// getConversation handles GET /conversations/{id}; the response embeds
// the full reply forest.
func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := a.Engine.Conversation(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if conv.Messages == nil {
		conv.Messages = []*models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, conv)
}

// deleteConversation handles DELETE /conversations/{id}.
func (a *API) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Engine.DeleteConversation(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listMessages handles GET /conversations/{id}/messages, returning the
// reply forest without the conversation metadata.
func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := a.Engine.Conversation(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	msgs := conv.Messages
	if msgs == nil {
		msgs = []*models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Messages []*models.Message `json:"messages"`
	}{Messages: msgs})
}

// createMessage handles POST /conversations/{id}/messages. An optional
// parent_id attaches the message as a reply.
func (a *API) createMessage(w http.ResponseWriter, r *http.Request) {
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
	msg, err := a.Engine.PostMessage(id, req.ParentID, req.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

// updateMessage handles PUT /conversations/{id}/messages/{msgID}.
func (a *API) updateMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateContent(req.Content); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := a.Engine.EditMessage(vars["id"], vars["msgID"], req.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

// deleteMessage handles DELETE /conversations/{id}/messages/{msgID}.
// The whole reply subtree goes with it; the response reports the count.
func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	removed, err := a.Engine.DeleteMessage(vars["id"], vars["msgID"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"removed": removed})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrBusy):
		utils.JSONError(w, http.StatusConflict, "generation already in progress")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
