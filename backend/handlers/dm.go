// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/efchatnet/efchat-core/backend/messaging"
	"github.com/efchatnet/efchat-core/backend/models"
)

// DMHandler serves direct conversations between two users
type DMHandler struct {
	svc    *messaging.Service
	logger *log.Logger
}

func NewDMHandler(svc *messaging.Service, logger *log.Logger) *DMHandler {
	return &DMHandler{svc: svc, logger: logger}
}

type sendDirectRequest struct {
	RecipientID      int64  `json:"recipient_id" validate:"required,gt=0"`
	Content          string `json:"content" validate:"required"`
	ReplyToMessageID *int64 `json:"reply_to_message_id,omitempty" validate:"omitempty,gt=0"`
}

type sendRequest struct {
	Content          string `json:"content" validate:"required"`
	ReplyToMessageID *int64 `json:"reply_to_message_id,omitempty" validate:"omitempty,gt=0"`
}

type openConversationRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

// SendDirect sends to a user, creating the conversation on first contact
func (h *DMHandler) SendDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req sendDirectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.svc.SendDirect(r.Context(), userID, req.RecipientID, req.Content, req.ReplyToMessageID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// OpenConversation returns the conversation with another user, creating it if needed
func (h *DMHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req openConversationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	conv, err := h.svc.GetOrCreateDirectConversation(r.Context(), userID, req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *DMHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	convs, err := h.svc.ListConversationsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if convs == nil {
		convs = []models.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

func (h *DMHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	conv, err := h.svc.GetConversation(r.Context(), userID, convID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Send posts into an existing conversation
func (h *DMHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req sendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.svc.Send(r.Context(), userID, models.DirectScope(convID), req.Content, req.ReplyToMessageID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *DMHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	listMessages(w, r, h.svc, h.logger, userID, models.DirectScope(convID))
}

func (h *DMHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	markRead(w, r, h.svc, h.logger, userID, models.DirectScope(convID))
}

// GetTyping reports whether the other participant is currently typing
func (h *DMHandler) GetTyping(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	typing, err := h.svc.GetTyping(r.Context(), userID, convID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_typing": typing})
}

func (h *DMHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req typingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.SetTyping(r.Context(), userID, convID, req.IsTyping); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DMHandler) SetMute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	setMute(w, r, h.svc, h.logger, userID, models.MuteConversation, convID)
}
