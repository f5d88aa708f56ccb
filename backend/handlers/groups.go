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

type GroupHandler struct {
	svc    *messaging.Service
	logger *log.Logger
}

func NewGroupHandler(svc *messaging.Service, logger *log.Logger) *GroupHandler {
	return &GroupHandler{svc: svc, logger: logger}
}

type createGroupRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description,omitempty" validate:"max=500"`
	Picture     string  `json:"picture,omitempty" validate:"omitempty,url"`
	MemberIDs   []int64 `json:"member_ids" validate:"required,min=1,dive,gt=0"`
}

type addMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type setRoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=member admin"`
}

// CreateGroup creates a group owned by the caller
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	group, err := h.svc.CreateGroup(r.Context(), userID, models.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		Picture:     req.Picture,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	groups, err := h.svc.ListGroupsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if groups == nil {
		groups = []models.GroupSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

// GetGroup returns the group with its member list
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	details, err := h.svc.GetGroup(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req addMemberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.AddMember(r.Context(), userID, groupID, req.UserID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember removes a member; members may always remove themselves
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	memberID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.RemoveMember(r.Context(), userID, groupID, memberID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	memberID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req setRoleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.SetMemberRole(r.Context(), userID, groupID, memberID, req.Role); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendGroupMessage posts a message visible to every member
func (h *GroupHandler) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req sendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.svc.Send(r.Context(), userID, models.GroupScope(groupID), req.Content, req.ReplyToMessageID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *GroupHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	listMessages(w, r, h.svc, h.logger, userID, models.GroupScope(groupID))
}

func (h *GroupHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	markRead(w, r, h.svc, h.logger, userID, models.GroupScope(groupID))
}

func (h *GroupHandler) SetMute(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	setMute(w, r, h.svc, h.logger, userID, models.MuteGroup, groupID)
}
