// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{store: memory.NewStore(), now: t0}
	clock := func() time.Time { return f.now }
	profiles := memory.NewProfiles(
		models.Profile{ID: 1, Username: "alice"},
		models.Profile{ID: 2, Username: "bob"},
		models.Profile{ID: 3, Username: "carol"},
	)
	opts = append([]Option{WithClock(clock)}, opts...)
	f.svc = NewService(f.store, profiles, memory.NewTypingTracker(3*time.Second, clock), Config{}, opts...)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) group(t *testing.T, owner int64, members ...int64) int64 {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), owner, models.CreateGroupInput{Name: "team", MemberIDs: members})
	require.NoError(t, err)
	return g.ID
}

func TestDirectMessageLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, 1, 2, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, msg.Status)

	convs, err := f.svc.ListConversationsForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, "alice", convs[0].OtherUser.Username)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hi", convs[0].LastMessage.Content)

	n, err := f.svc.UpdateStatus(ctx, 2, []int64{msg.ID}, models.StatusRead)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	convs, err = f.svc.ListConversationsForUser(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, convs[0].UnreadCount)

	history, err := f.svc.ListMessages(ctx, 2, msg.Scope)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusRead, history[0].Status)

	f.advance(time.Minute)
	edited, err := f.svc.Edit(ctx, 1, msg.ID, "hi there")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "hi there", edited.Content)
	require.NotNil(t, edited.EditedAt)
	assert.True(t, f.now.Equal(*edited.EditedAt))

	f.advance(19 * time.Minute)
	err = f.svc.Delete(ctx, 1, msg.ID, true)
	assert.ErrorIs(t, err, apperr.ErrState)
}

func TestEditWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.svc.SendDirect(ctx, 1, 2, "old", nil)
	require.NoError(t, err)
	f.advance(2 * time.Minute)
	recent, err := f.svc.SendDirect(ctx, 1, 2, "recent", nil)
	require.NoError(t, err)

	f.advance(14 * time.Minute)

	_, err = f.svc.Edit(ctx, 1, old.ID, "changed")
	assert.ErrorIs(t, err, apperr.ErrState, "16 minutes old")

	_, err = f.svc.Edit(ctx, 1, recent.ID, "changed")
	assert.NoError(t, err, "14 minutes old")
}

func TestEditRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, 1, 2, "hello", nil)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, 2, msg.ID, "mine now")
	assert.ErrorIs(t, err, apperr.ErrPermission)

	_, err = f.svc.Edit(ctx, 1, msg.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Edit(ctx, 1, 999, "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, 1, msg.ID, true))
	_, err = f.svc.Edit(ctx, 1, msg.ID, "back")
	assert.ErrorIs(t, err, apperr.ErrState)
}

func TestDeletePermissionsAndIndependence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, 1, 2, "secret", nil)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, 2, msg.ID, true)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	require.NoError(t, f.svc.Delete(ctx, 1, msg.ID, false))
	require.NoError(t, f.svc.Delete(ctx, 1, msg.ID, false), "repeat is a no-op")

	mine, err := f.svc.ListMessages(ctx, 1, msg.Scope)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := f.svc.ListMessages(ctx, 2, msg.Scope)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "secret", theirs[0].Content)

	require.NoError(t, f.svc.Delete(ctx, 2, msg.ID, false))
	theirs, err = f.svc.ListMessages(ctx, 2, msg.Scope)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	err = f.svc.Delete(ctx, 3, msg.ID, false)
	assert.ErrorIs(t, err, apperr.ErrPermission, "outsiders cannot hide")
}

func TestDeleteForEveryoneRendersTombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SendDirect(ctx, 1, 2, "oops", nil)
	require.NoError(t, err)
	reply, err := f.svc.Send(ctx, 2, first.Scope, "what?", &first.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "oops", reply.ReplyTo.Content)

	require.NoError(t, f.svc.Delete(ctx, 1, first.ID, true))
	require.NoError(t, f.svc.Delete(ctx, 1, first.ID, true), "repeat is a no-op")

	history, err := f.svc.ListMessages(ctx, 2, first.Scope)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.True(t, history[0].DeletedForEveryone)
	assert.True(t, history[0].IsDeleted)
	assert.Equal(t, TombstoneText, history[0].Content)

	require.NotNil(t, history[1].ReplyTo)
	assert.True(t, history[1].ReplyTo.Deleted)
	assert.Empty(t, history[1].ReplyTo.Content)
}

func TestReplyMustStayInScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	elsewhere, err := f.svc.SendDirect(ctx, 1, 3, "other chat", nil)
	require.NoError(t, err)
	here, err := f.svc.SendDirect(ctx, 1, 2, "this chat", nil)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, 1, here.Scope, "reply", &elsewhere.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	missing := int64(12345)
	_, err = f.svc.Send(ctx, 1, here.Scope, "reply", &missing)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Send(ctx, 2, here.Scope, "reply", &here.ID)
	assert.NoError(t, err)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendDirect(ctx, 1, 1, "me", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.SendDirect(ctx, 1, 2, "  \n", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	convs, err := f.svc.ListConversationsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, convs, "rejected sends create nothing")

	_, err = f.svc.Send(ctx, 1, models.DirectScope(77), "hi", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	msg, err := f.svc.SendDirect(ctx, 1, 2, "hi", nil)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, 3, msg.Scope, "intruder", nil)
	assert.ErrorIs(t, err, apperr.ErrPermission)
}

func TestConversationLookupIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := f.svc.GetOrCreateDirectConversation(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, 1, 2, "ping", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		status := models.StatusDelivered
		if i%3 == 0 {
			status = models.StatusRead
		}
		wg.Add(1)
		go func(status models.Status) {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(ctx, 2, []int64{msg.ID}, status)
			assert.NoError(t, err)
		}(status)
	}
	wg.Wait()

	history, err := f.svc.ListMessages(ctx, 1, msg.Scope)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, history[0].Status)

	_, err = f.svc.UpdateStatus(ctx, 2, []int64{msg.ID}, models.StatusSent)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateStatusSkipsForeignMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, 1, 2, "ping", nil)
	require.NoError(t, err)

	n, err := f.svc.UpdateStatus(ctx, 3, []int64{msg.ID, 404}, models.StatusRead)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.UpdateStatus(ctx, 1, []int64{msg.ID}, models.StatusRead)
	require.NoError(t, err)
	assert.Zero(t, n, "senders do not read their own messages")
}

func TestGroupAdminInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gid := f.group(t, 1, 2, 3)

	err := f.svc.RemoveMember(ctx, 1, gid, 1)
	assert.ErrorIs(t, err, apperr.ErrInvariant)

	require.NoError(t, f.svc.SetMemberRole(ctx, 1, gid, 2, models.RoleAdmin))
	require.NoError(t, f.svc.RemoveMember(ctx, 2, gid, 1), "non-last admin can be removed")

	err = f.svc.SetMemberRole(ctx, 2, gid, 2, models.RoleMember)
	assert.ErrorIs(t, err, apperr.ErrInvariant)

	details, err := f.svc.GetGroup(ctx, 3, gid)
	require.NoError(t, err)
	require.Len(t, details.Members, 2)
	for _, m := range details.Members {
		require.NotNil(t, m.Profile)
	}
}

func TestGroupPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gid := f.group(t, 1, 2)

	assert.ErrorIs(t, f.svc.AddMember(ctx, 2, gid, 3), apperr.ErrPermission)
	assert.ErrorIs(t, f.svc.AddMember(ctx, 3, gid, 3), apperr.ErrPermission)
	assert.ErrorIs(t, f.svc.AddMember(ctx, 1, gid, 2), apperr.ErrConflict)
	assert.ErrorIs(t, f.svc.AddMember(ctx, 1, 999, 3), apperr.ErrNotFound)
	require.NoError(t, f.svc.AddMember(ctx, 1, gid, 3))

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, 2, gid, 3), apperr.ErrPermission)
	require.NoError(t, f.svc.RemoveMember(ctx, 3, gid, 3), "members may leave")
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, 3, gid, 3), apperr.ErrNotFound)

	_, err := f.svc.ListMessages(ctx, 3, models.GroupScope(gid))
	assert.ErrorIs(t, err, apperr.ErrPermission)

	_, err = f.svc.CreateGroup(ctx, 1, models.CreateGroupInput{Name: "alone", MemberIDs: []int64{1}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreateGroup(ctx, 1, models.CreateGroupInput{Name: " ", MemberIDs: []int64{2}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// interleavingStore runs beforeAdd once between the service's admin check
// and the store write.
type interleavingStore struct {
	*memory.Store
	beforeAdd func()
}

func (s *interleavingStore) AddMember(ctx context.Context, groupID, actorID, userID int64, role models.Role, now time.Time) error {
	if hook := s.beforeAdd; hook != nil {
		s.beforeAdd = nil
		hook()
	}
	return s.Store.AddMember(ctx, groupID, actorID, userID, role, now)
}

func TestAddMemberRecheckedAgainstConcurrentChanges(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfiles(
		models.Profile{ID: 1, Username: "alice"},
		models.Profile{ID: 2, Username: "bob"},
		models.Profile{ID: 3, Username: "carol"},
	)

	cases := []struct {
		name        string
		setup       func(t *testing.T, svc *Service, gid int64)
		meanwhile   func(t *testing.T, svc *Service, gid int64)
		wantMembers int
	}{
		{
			name: "group emptied",
			meanwhile: func(t *testing.T, svc *Service, gid int64) {
				require.NoError(t, svc.RemoveMember(ctx, 1, gid, 2))
				require.NoError(t, svc.RemoveMember(ctx, 1, gid, 1))
			},
			wantMembers: 0,
		},
		{
			name: "actor demoted",
			setup: func(t *testing.T, svc *Service, gid int64) {
				require.NoError(t, svc.SetMemberRole(ctx, 1, gid, 2, models.RoleAdmin))
			},
			meanwhile: func(t *testing.T, svc *Service, gid int64) {
				require.NoError(t, svc.SetMemberRole(ctx, 2, gid, 1, models.RoleMember))
			},
			wantMembers: 2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &interleavingStore{Store: memory.NewStore()}
			svc := NewService(store, profiles, memory.NewTypingTracker(time.Second, nil), Config{})

			g, err := svc.CreateGroup(ctx, 1, models.CreateGroupInput{Name: "team", MemberIDs: []int64{2}})
			require.NoError(t, err)
			if tc.setup != nil {
				tc.setup(t, svc, g.ID)
			}
			store.beforeAdd = func() { tc.meanwhile(t, svc, g.ID) }

			err = svc.AddMember(ctx, 1, g.ID, 3)
			assert.ErrorIs(t, err, apperr.ErrPermission)

			members, err := store.ListMembers(ctx, g.ID)
			require.NoError(t, err)
			assert.Len(t, members, tc.wantMembers)
			if len(members) > 0 {
				admins := 0
				for _, m := range members {
					if m.Role == models.RoleAdmin {
						admins++
					}
				}
				assert.Positive(t, admins)
			}
		})
	}
}

func TestFriendshipGate(t *testing.T) {
	friends := memory.NewFriendships([2]int64{1, 2})
	f := newFixture(t, WithFriendships(friends))
	ctx := context.Background()

	_, err := f.svc.SendDirect(ctx, 1, 3, "hi", nil)
	assert.ErrorIs(t, err, apperr.ErrPermission)
	_, err = f.svc.GetOrCreateDirectConversation(ctx, 3, 1)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	msg, err := f.svc.SendDirect(ctx, 1, 2, "hi", nil)
	require.NoError(t, err)

	_, err = f.svc.CreateGroup(ctx, 1, models.CreateGroupInput{Name: "team", MemberIDs: []int64{2, 3}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	gid := f.group(t, 1, 2)
	assert.ErrorIs(t, f.svc.AddMember(ctx, 1, gid, 3), apperr.ErrValidation)
	friends.Set(3, 1, true)
	require.NoError(t, f.svc.AddMember(ctx, 1, gid, 3))

	// an existing conversation closes once the friendship ends
	friends.Set(1, 2, false)
	_, err = f.svc.Send(ctx, 2, msg.Scope, "still there?", nil)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	// group traffic is gated by membership only
	_, err = f.svc.Send(ctx, 2, models.GroupScope(gid), "hello team", nil)
	require.NoError(t, err)
}

func TestGroupUnreadAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gid := f.group(t, 1, 2, 3)
	scope := models.GroupScope(gid)

	for _, text := range []string{"a", "b", "c"} {
		f.advance(time.Second)
		_, err := f.svc.Send(ctx, 1, scope, text, nil)
		require.NoError(t, err)
	}

	groups, err := f.svc.ListGroupsForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].UnreadCount)
	assert.Equal(t, 3, groups[0].MemberCount)
	assert.Equal(t, models.RoleMember, groups[0].Role)
	require.NotNil(t, groups[0].LastMessage)
	assert.Equal(t, "c", groups[0].LastMessage.Content)

	_, err = f.svc.MarkScopeRead(ctx, 2, scope)
	require.NoError(t, err)

	total, err := f.svc.UnreadTotal(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = f.svc.UnreadTotal(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestSearchVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hidden, err := f.svc.SendDirect(ctx, 2, 1, "lunch at noon?", nil)
	require.NoError(t, err)
	f.advance(time.Second)
	kept, err := f.svc.SendDirect(ctx, 2, 1, "LUNCH tomorrow then", nil)
	require.NoError(t, err)
	f.advance(time.Second)
	mine, err := f.svc.SendDirect(ctx, 1, 2, "lunch sounds good", nil)
	require.NoError(t, err)

	gid := f.group(t, 3, 1)
	f.advance(time.Second)
	_, err = f.svc.Send(ctx, 3, models.GroupScope(gid), "team lunch friday", nil)
	require.NoError(t, err)

	_, err = f.svc.SendDirect(ctx, 2, 3, "lunch without alice", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, 1, hidden.ID, false))
	require.NoError(t, f.svc.Delete(ctx, 1, mine.ID, true))

	results, err := f.svc.Search(ctx, 1, "lunch")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "team lunch friday", results[0].Message.Content)
	assert.Equal(t, models.CounterpartGroup, results[0].Counterpart.Kind)
	require.NotNil(t, results[0].Counterpart.Group)
	assert.Equal(t, "team", results[0].Counterpart.Group.Name)

	assert.Equal(t, kept.ID, results[1].Message.ID)
	assert.Equal(t, models.CounterpartDirect, results[1].Counterpart.Kind)
	require.NotNil(t, results[1].Counterpart.OtherUser)
	assert.Equal(t, "bob", results[1].Counterpart.OtherUser.Username)

	_, err = f.svc.Search(ctx, 1, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSearchEscapesWildcards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendDirect(ctx, 1, 2, "100% sure", nil)
	require.NoError(t, err)
	_, err = f.svc.SendDirect(ctx, 1, 2, "1000 sure", nil)
	require.NoError(t, err)

	results, err := f.svc.Search(ctx, 2, "0%")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "100% sure", results[0].Message.Content)
}

func TestTypingExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.GetOrCreateDirectConversation(ctx, 1, 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetTyping(ctx, 1, conv.ID, true))
	typing, err := f.svc.GetTyping(ctx, 2, conv.ID)
	require.NoError(t, err)
	assert.True(t, typing)

	typing, err = f.svc.GetTyping(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.False(t, typing, "own typing is not reported back")

	f.advance(3 * time.Second)
	typing, err = f.svc.GetTyping(ctx, 2, conv.ID)
	require.NoError(t, err)
	assert.False(t, typing)

	assert.ErrorIs(t, f.svc.SetTyping(ctx, 3, conv.ID, true), apperr.ErrPermission)
}

func TestMuteOnlyAffectsViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, 1, 2, "hi", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetMute(ctx, 2, models.MuteConversation, msg.Scope.ID, true))

	convs, err := f.svc.ListConversationsForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].Muted)
	assert.Equal(t, 1, convs[0].UnreadCount)

	convs, err = f.svc.ListConversationsForUser(ctx, 1)
	require.NoError(t, err)
	assert.False(t, convs[0].Muted)

	assert.ErrorIs(t, f.svc.SetMute(ctx, 3, models.MuteConversation, msg.Scope.ID, true), apperr.ErrPermission)
	assert.ErrorIs(t, f.svc.SetMute(ctx, 2, "channel", msg.Scope.ID, true), apperr.ErrValidation)
}
