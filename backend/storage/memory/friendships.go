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

type friendPair struct{ a, b int64 }

func pairOf(userA, userB int64) friendPair {
	a, b := models.OrderedPair(userA, userB)
	return friendPair{a, b}
}

// Friendships is a FriendshipChecker over a fixed set of accepted pairs
type Friendships struct {
	mu    sync.RWMutex
	pairs map[friendPair]bool
}

// NewFriendships seeds accepted friendships; each entry is a pair of user ids
func NewFriendships(pairs ...[2]int64) *Friendships {
	f := &Friendships{pairs: make(map[friendPair]bool)}
	for _, p := range pairs {
		f.pairs[pairOf(p[0], p[1])] = true
	}
	return f
}

// Set accepts or ends the friendship between two users
func (f *Friendships) Set(userA, userB int64, friends bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if friends {
		f.pairs[pairOf(userA, userB)] = true
	} else {
		delete(f.pairs, pairOf(userA, userB))
	}
}

func (f *Friendships) AreFriends(ctx context.Context, userA, userB int64) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pairs[pairOf(userA, userB)], nil
}
