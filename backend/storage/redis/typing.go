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

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTypingTTL = 3 * time.Second

	// Redis key prefixes
	typingPrefix = "typing:"      // typing:{conversationId}:{userId} - present while typing
	notifyPrefix = "chat:notify:" // chat:notify:{userId} - pub/sub channel
)

// TypingTracker keeps typing flags as keys that Redis expires on its own
type TypingTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTypingTracker(rdb *redis.Client, ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{rdb: rdb, ttl: ttl}
}

func typingKey(conversationID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", typingPrefix, conversationID, userID)
}

func (t *TypingTracker) SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) error {
	key := typingKey(conversationID, userID)
	if !isTyping {
		if err := t.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear typing: %w", err)
		}
		return nil
	}

	// Each keystroke refreshes the TTL
	if err := t.rdb.Set(ctx, key, 1, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

func (t *TypingTracker) IsTyping(ctx context.Context, conversationID, userID int64) (bool, error) {
	n, err := t.rdb.Exists(ctx, typingKey(conversationID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read typing: %w", err)
	}
	return n > 0, nil
}
