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

package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

// Send posts content into scope on behalf of senderID
func (s *Service) Send(ctx context.Context, senderID int64, scope models.Scope, content string, replyToID *int64) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("message content cannot be empty")
	}
	if !scope.Valid() {
		return nil, apperr.Validation("invalid scope")
	}
	if err := s.authorize(ctx, scope, senderID); err != nil {
		return nil, err
	}
	if scope.Kind == models.ScopeDirect {
		if err := s.requireFriendInConversation(ctx, scope.ID, senderID); err != nil {
			return nil, err
		}
	}

	var replyTarget *models.Message
	if replyToID != nil {
		target, err := s.store.GetMessage(ctx, *replyToID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Validation("reply target does not exist")
		}
		if err != nil {
			return nil, internal("messaging.Send.GetMessage", err)
		}
		if target.Scope != scope {
			return nil, apperr.Validation("reply must reference a message in the same conversation")
		}
		replyTarget = target
	}

	msg := &models.Message{
		Scope:            scope,
		SenderID:         senderID,
		Content:          content,
		CreatedAt:        s.clock(),
		Status:           models.StatusSent,
		ReplyToMessageID: replyToID,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotMember):
			// membership changed between the check and the insert
			return nil, apperr.Permission("you are no longer part of this conversation")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, internal("messaging.Send.CreateMessage", err)
	}

	s.logger.Debug("message sent", "message_id", msg.ID, "scope", scope.String(), "sender_id", senderID)
	s.notify(ctx, models.EventMessageCreated, msg)

	var byID map[int64]models.Message
	if replyTarget != nil {
		byID = map[int64]models.Message{replyTarget.ID: *replyTarget}
	}
	out := render(*msg, nil, byID)
	return &out, nil
}

// requireFriendInConversation rejects sends once the participants are no longer friends
func (s *Service) requireFriendInConversation(ctx context.Context, conversationID, senderID int64) error {
	conv, err := s.conversationFor(ctx, conversationID, senderID)
	if err != nil {
		return err
	}
	friends, err := s.areFriends(ctx, senderID, conv.Other(senderID))
	if err != nil {
		return err
	}
	if !friends {
		return apperr.Permission("can only send messages to friends")
	}
	return nil
}

// SendDirect sends to recipientID, creating the conversation on first contact
func (s *Service) SendDirect(ctx context.Context, senderID, recipientID int64, content string, replyToID *int64) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("message content cannot be empty")
	}
	conv, err := s.GetOrCreateDirectConversation(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, senderID, models.DirectScope(conv.ID), content, replyToID)
}

// Edit replaces the content of one of actorID's own messages
func (s *Service) Edit(ctx context.Context, actorID, messageID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("message content cannot be empty")
	}

	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID {
		return nil, apperr.Permission("you can only edit your own messages")
	}
	if msg.DeletedForEveryone {
		return nil, apperr.State("cannot edit a deleted message")
	}
	hidden, err := s.store.HiddenMessageIDs(ctx, actorID, msg.Scope)
	if err != nil {
		return nil, internal("messaging.Edit.HiddenMessageIDs", err)
	}
	if hidden[msg.ID] {
		return nil, apperr.State("cannot edit a deleted message")
	}

	now := s.clock()
	if !s.withinWindow(msg.CreatedAt, now) {
		return nil, apperr.State(fmt.Sprintf("messages can only be edited within %s of sending", windowText(s.cfg.EditWindow)))
	}

	err = s.store.UpdateContent(ctx, msg.ID, content, now, now.Add(-s.cfg.EditWindow))
	if errors.Is(err, storage.ErrConditionFailed) {
		return nil, apperr.State("message can no longer be edited")
	}
	if err != nil {
		return nil, internal("messaging.Edit.UpdateContent", err)
	}

	updated, err := s.loadMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("message edited", "message_id", msg.ID, "sender_id", actorID)
	s.notify(ctx, models.EventMessageEdited, updated)

	out := render(*updated, hidden, nil)
	return &out, nil
}

// Delete hides the message from actorID, or with forEveryone tombstones it for
// every participant. Repeating either form succeeds without further effect.
func (s *Service) Delete(ctx context.Context, actorID, messageID int64, forEveryone bool) error {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if !forEveryone {
		if err := s.authorize(ctx, msg.Scope, actorID); err != nil {
			return err
		}
		if err := s.store.HideMessage(ctx, msg.ID, actorID, s.clock()); err != nil {
			return internal("messaging.Delete.HideMessage", err)
		}
		s.logger.Debug("message hidden", "message_id", msg.ID, "user_id", actorID)
		return nil
	}

	if msg.SenderID != actorID {
		return apperr.Permission("only the sender can delete a message for everyone")
	}
	if msg.DeletedForEveryone {
		return nil
	}

	now := s.clock()
	if !s.withinWindow(msg.CreatedAt, now) {
		return apperr.State(fmt.Sprintf("messages can only be deleted for everyone within %s of sending", windowText(s.cfg.EditWindow)))
	}

	err = s.store.Tombstone(ctx, msg.ID, now.Add(-s.cfg.EditWindow))
	if errors.Is(err, storage.ErrConditionFailed) {
		// a concurrent delete may have won
		current, lerr := s.loadMessage(ctx, msg.ID)
		if lerr == nil && current.DeletedForEveryone {
			return nil
		}
		return apperr.State("message can no longer be deleted for everyone")
	}
	if err != nil {
		return internal("messaging.Delete.Tombstone", err)
	}

	s.logger.Debug("message deleted for everyone", "message_id", msg.ID, "sender_id", actorID)
	s.notify(ctx, models.EventMessageDeleted, msg)
	return nil
}

// ListMessages returns the scope's history as viewerID sees it, oldest first
func (s *Service) ListMessages(ctx context.Context, viewerID int64, scope models.Scope) ([]models.Message, error) {
	if !scope.Valid() {
		return nil, apperr.Validation("invalid scope")
	}
	if err := s.authorize(ctx, scope, viewerID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, scope)
	if err != nil {
		return nil, internal("messaging.ListMessages", err)
	}
	hidden, err := s.store.HiddenMessageIDs(ctx, viewerID, scope)
	if err != nil {
		return nil, internal("messaging.ListMessages.HiddenMessageIDs", err)
	}

	byID := make(map[int64]models.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if !Visible(m, viewerID, hidden) {
			continue
		}
		out = append(out, render(m, hidden, byID))
	}
	return out, nil
}

// UpdateStatus advances delivery state for the given messages. Ids the viewer
// is not a recipient of are skipped; the count covers only real changes.
func (s *Service) UpdateStatus(ctx context.Context, viewerID int64, messageIDs []int64, status models.Status) (int64, error) {
	if status != models.StatusDelivered && status != models.StatusRead {
		return 0, apperr.Validation("status must be 'delivered' or 'read'")
	}
	if len(messageIDs) == 0 {
		return 0, apperr.Validation("no message ids provided")
	}

	n, err := s.store.AdvanceStatus(ctx, messageIDs, viewerID, status)
	if err != nil {
		return 0, internal("messaging.UpdateStatus", err)
	}
	return n, nil
}

// MarkScopeRead marks everything the viewer received in scope as read
func (s *Service) MarkScopeRead(ctx context.Context, viewerID int64, scope models.Scope) (int64, error) {
	if !scope.Valid() {
		return 0, apperr.Validation("invalid scope")
	}
	if err := s.authorize(ctx, scope, viewerID); err != nil {
		return 0, err
	}

	n, err := s.store.MarkScopeRead(ctx, scope, viewerID)
	if errors.Is(err, storage.ErrNotMember) {
		return 0, apperr.Permission("you are not part of this conversation")
	}
	if err != nil {
		return 0, internal("messaging.MarkScopeRead", err)
	}
	return n, nil
}

func (s *Service) loadMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, internal("messaging.loadMessage", err)
	}
	return msg, nil
}

// withinWindow is true while now - createdAt < EditWindow
func (s *Service) withinWindow(createdAt, now time.Time) bool {
	return now.Sub(createdAt) < s.cfg.EditWindow
}

func windowText(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
