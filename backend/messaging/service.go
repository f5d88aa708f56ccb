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

// Package messaging implements the rules of the chat core: who may do what to
// which conversation, group or message. Persistence and the atomic guards
// behind each rule live in the storage implementations.
//
// Every operation takes the acting user's id explicitly; the package never
// looks at ambient session state.
package messaging

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

const (
	DefaultEditWindow  = 15 * time.Minute
	DefaultSearchLimit = 50

	// TombstoneText replaces the content of messages deleted for everyone
	TombstoneText = "This message was deleted"
)

type Config struct {
	// EditWindow bounds both editing and deleting for everyone
	EditWindow  time.Duration
	SearchLimit int
}

type Service struct {
	store    storage.Store
	profiles storage.ProfileResolver
	friends  storage.FriendshipChecker
	typing   storage.TypingTracker
	notifier storage.Notifier
	logger   *log.Logger
	cfg      Config
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifier(n storage.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithFriendships gates direct messages and group membership on accepted
// friendships. Without it every pair of users counts as friends.
func WithFriendships(f storage.FriendshipChecker) Option {
	return func(s *Service) { s.friends = f }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store storage.Store, profiles storage.ProfileResolver, typing storage.TypingTracker, cfg Config, opts ...Option) *Service {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = DefaultEditWindow
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}

	s := &Service{
		store:    store,
		profiles: profiles,
		friends:  everyoneFriends{},
		typing:   typing,
		notifier: nopNotifier{},
		logger:   log.New(io.Discard),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// internal hides storage failures behind a generic message
func internal(op string, err error) error {
	return apperr.Internal("internal error", errors.Wrap(err, op))
}

type everyoneFriends struct{}

func (everyoneFriends) AreFriends(context.Context, int64, int64) (bool, error) { return true, nil }

// areFriends wraps the checker's failures as internal errors
func (s *Service) areFriends(ctx context.Context, userA, userB int64) (bool, error) {
	ok, err := s.friends.AreFriends(ctx, userA, userB)
	if err != nil {
		return false, internal("messaging.AreFriends", err)
	}
	return ok, nil
}

// authorize checks that scope exists and userID belongs to it
func (s *Service) authorize(ctx context.Context, scope models.Scope, userID int64) error {
	switch scope.Kind {
	case models.ScopeDirect:
		_, err := s.conversationFor(ctx, scope.ID, userID)
		return err
	case models.ScopeGroup:
		_, err := s.membership(ctx, scope.ID, userID)
		return err
	}
	return apperr.Validation("invalid scope")
}

func (s *Service) conversationFor(ctx context.Context, conversationID, userID int64) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, internal("messaging.conversationFor", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.Permission("you are not a participant of this conversation")
	}
	return conv, nil
}

// membership returns the caller's membership row in groupID
func (s *Service) membership(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, internal("messaging.membership.GetGroup", err)
	}
	member, err := s.store.GetMember(ctx, groupID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Permission("you are not a member of this group")
	}
	if err != nil {
		return nil, internal("messaging.membership.GetMember", err)
	}
	return member, nil
}

func (s *Service) resolveProfiles(ctx context.Context, ids []int64) map[int64]models.Profile {
	if len(ids) == 0 || s.profiles == nil {
		return map[int64]models.Profile{}
	}
	profiles, err := s.profiles.ResolveProfiles(ctx, ids)
	if err != nil {
		// summaries still render with bare ids
		s.logger.Warn("failed to resolve profiles", "err", err, "count", len(ids))
		return map[int64]models.Profile{}
	}
	return profiles
}

func profileOrID(profiles map[int64]models.Profile, id int64) models.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return models.Profile{ID: id}
}
