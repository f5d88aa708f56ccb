// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/efchatnet/efchat-core/backend/models"
)

type typingKey struct{ conversationID, userID int64 }

// TypingTracker keeps typing flags in a map and expires them lazily on read
type TypingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[typingKey]time.Time // expires at
}

func NewTypingTracker(ttl time.Duration, now func() time.Time) *TypingTracker {
	if now == nil {
		now = time.Now
	}
	return &TypingTracker{
		ttl:     ttl,
		now:     now,
		entries: make(map[typingKey]time.Time),
	}
}

func (t *TypingTracker) SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{conversationID, userID}
	if !isTyping {
		delete(t.entries, key)
		return nil
	}
	t.entries[key] = t.now().Add(t.ttl)
	return nil
}

func (t *TypingTracker) IsTyping(ctx context.Context, conversationID, userID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{conversationID, userID}
	expiresAt, ok := t.entries[key]
	if !ok {
		return false, nil
	}
	if !t.now().Before(expiresAt) {
		delete(t.entries, key)
		return false, nil
	}
	return true, nil
}

// Profiles is a ProfileResolver backed by a map, for running without the
// auth service's database.
type Profiles struct {
	mu       sync.RWMutex
	profiles map[int64]models.Profile
}

func NewProfiles(profiles ...models.Profile) *Profiles {
	p := &Profiles{profiles: make(map[int64]models.Profile)}
	for _, profile := range profiles {
		p.profiles[profile.ID] = profile
	}
	return p
}

func (p *Profiles) Put(profile models.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.ID] = profile
}

func (p *Profiles) ResolveProfiles(ctx context.Context, userIDs []int64) (map[int64]models.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[int64]models.Profile, len(userIDs))
	for _, id := range userIDs {
		if profile, ok := p.profiles[id]; ok {
			out[id] = profile
		}
	}
	return out, nil
}
