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

	"github.com/efchatnet/efchat-core/backend/models"
)

const subscriberBuffer = 16

// Broker fans events out to in-process subscribers. A subscriber that falls
// behind by more than its buffer loses events rather than blocking senders.
type Broker struct {
	mu   sync.Mutex
	subs map[int64]map[chan models.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int64]map[chan models.Event]struct{})}
}

func (b *Broker) Notify(ctx context.Context, event models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.RecipientID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe streams userID's events until ctx is cancelled
func (b *Broker) Subscribe(ctx context.Context, userID int64) (<-chan models.Event, error) {
	ch := make(chan models.Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan models.Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[userID], ch)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
