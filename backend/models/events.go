// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessageEdited  EventType = "message.edited"
	EventMessageDeleted EventType = "message.deleted"
)

// Event is pushed to a recipient when something changes in one of their scopes.
// Clients that poll can ignore these entirely.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	RecipientID int64     `json:"recipient_id"`
	Scope       Scope     `json:"scope"`
	MessageID   int64     `json:"message_id"`
	SenderID    int64     `json:"sender_id"`
	At          time.Time `json:"at"`
}
