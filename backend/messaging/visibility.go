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
	"github.com/efchatnet/efchat-core/backend/models"
)

// Visible reports whether viewerID sees msg at all. hidden is the viewer's
// delete-for-me set. Tombstones remain visible and render as deleted.
func Visible(msg models.Message, viewerID int64, hidden map[int64]bool) bool {
	return !hidden[msg.ID]
}

// Searchable is Visible minus tombstones, whose content is gone
func Searchable(msg models.Message, viewerID int64, hidden map[int64]bool) bool {
	return Visible(msg, viewerID, hidden) && !msg.DeletedForEveryone
}

// render produces the viewer's copy of msg. byID holds the other messages of
// the same scope and is used for reply previews; it may be nil.
func render(msg models.Message, hidden map[int64]bool, byID map[int64]models.Message) models.Message {
	out := msg
	out.IsDeleted = msg.DeletedForEveryone
	if msg.DeletedForEveryone {
		out.Content = TombstoneText
	}

	if msg.ReplyToMessageID != nil && byID != nil {
		preview := &models.ReplyPreview{ID: *msg.ReplyToMessageID}
		target, ok := byID[*msg.ReplyToMessageID]
		if !ok || target.DeletedForEveryone || hidden[target.ID] {
			preview.Deleted = true
		} else {
			preview.SenderID = target.SenderID
			preview.Content = target.Content
			preview.CreatedAt = target.CreatedAt
		}
		out.ReplyTo = preview
	}
	return out
}
