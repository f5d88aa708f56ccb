// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/messaging"
	"github.com/efchatnet/efchat-core/backend/models"
)

// MessageHandler serves operations addressed to a message id regardless of scope
type MessageHandler struct {
	svc    *messaging.Service
	logger *log.Logger
}

func NewMessageHandler(svc *messaging.Service, logger *log.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

type editRequest struct {
	Content string `json:"content" validate:"required"`
}

type statusRequest struct {
	MessageIDs []int64       `json:"message_ids" validate:"required,min=1,dive,gt=0"`
	Status     models.Status `json:"status" validate:"required,oneof=delivered read"`
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	messageID, err := pathID(r, "messageId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req editRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.svc.Edit(r.Context(), userID, messageID, req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Delete hides the message for the caller, or tombstones it for everyone
// when ?for_everyone=true.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	messageID, err := pathID(r, "messageId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	forEveryone := false
	if raw := r.URL.Query().Get("for_everyone"); raw != "" {
		forEveryone, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, h.logger, apperr.Validation("for_everyone must be a boolean"))
			return
		}
	}

	if err := h.svc.Delete(r.Context(), userID, messageID, forEveryone); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.svc.UpdateStatus(r.Context(), userID, req.MessageIDs, req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	results, err := h.svc.Search(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if results == nil {
		results = []models.MessageSearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *MessageHandler) UnreadTotal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	total, err := h.svc.UnreadTotal(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": total})
}

// shared by the direct and group handlers

func listMessages(w http.ResponseWriter, r *http.Request, svc *messaging.Service, logger *log.Logger, userID int64, scope models.Scope) {
	msgs, err := svc.ListMessages(r.Context(), userID, scope)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func markRead(w http.ResponseWriter, r *http.Request, svc *messaging.Service, logger *log.Logger, userID int64, scope models.Scope) {
	updated, err := svc.MarkScopeRead(r.Context(), userID, scope)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func setMute(w http.ResponseWriter, r *http.Request, svc *messaging.Service, logger *log.Logger, userID int64, kind models.MuteTargetKind, targetID int64) {
	var req muteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}
	if err := svc.SetMute(r.Context(), userID, kind, targetID, req.Muted); err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MuteState{UserID: userID, TargetKind: kind, TargetID: targetID, Muted: req.Muted})
}
