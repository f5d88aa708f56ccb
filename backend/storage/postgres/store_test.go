// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/efchatnet/efchat-core/backend/models"
	"github.com/efchatnet/efchat-core/backend/storage"
)

var testDB *sql.DB

// TestMain starts a throwaway PostgreSQL. Without Docker, or with -short,
// every test in this package is skipped.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("efchat"),
		tcpostgres.WithUsername("efchat"),
		tcpostgres.WithPassword("password"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Warn("postgres container unavailable, skipping", "err", err)
		os.Exit(m.Run())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatal("connection string", "err", err)
	}
	testDB, err = Open(ctx, connStr)
	if err != nil {
		log.Fatal("open test db", "err", err)
	}
	if err := NewStore(testDB).Migrate(ctx); err != nil {
		log.Fatal("migrate", "err", err)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Warn("failed to terminate container", "err", err)
	}
	os.Exit(code)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres not available")
	}

	_, err := testDB.Exec(`TRUNCATE users, conversations, groups, group_members, messages,
		message_hides, mutes, group_read_cursors, friendships RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewStore(testDB)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConversationPairIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(5), int64(9)
			if i%2 == 0 {
				a, b = b, a
			}
			conv, err := s.GetOrCreateConversation(ctx, a, b, t0)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	conv, err := s.GetConversation(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(5), conv.ParticipantA)
	assert.Equal(t, int64(9), conv.ParticipantB)

	_, err = s.GetConversation(ctx, 4242)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, 1, 2, t0)
	require.NoError(t, err)
	scope := models.DirectScope(conv.ID)

	msg := &models.Message{Scope: scope, SenderID: 1, Content: "hello", CreatedAt: t0}
	require.NoError(t, s.CreateMessage(ctx, msg))
	assert.NotZero(t, msg.ID)

	err = s.CreateMessage(ctx, &models.Message{Scope: scope, SenderID: 3, Content: "x", CreatedAt: t0})
	assert.ErrorIs(t, err, storage.ErrNotMember)

	reply := &models.Message{Scope: scope, SenderID: 2, Content: "hey", CreatedAt: t0.Add(time.Second), ReplyToMessageID: &msg.ID}
	require.NoError(t, s.CreateMessage(ctx, reply))

	msgs, err := s.ListMessages(ctx, scope)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[0].ID)
	require.NotNil(t, msgs[1].ReplyToMessageID)
	assert.Equal(t, msg.ID, *msgs[1].ReplyToMessageID)

	window := 15 * time.Minute
	now := t0.Add(14 * time.Minute)
	require.NoError(t, s.UpdateContent(ctx, msg.ID, "hello!", now, now.Add(-window)))

	later := t0.Add(16 * time.Minute)
	err = s.UpdateContent(ctx, msg.ID, "too late", later, later.Add(-window))
	assert.ErrorIs(t, err, storage.ErrConditionFailed)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello!", got.Content)
	assert.True(t, got.IsEdited)
	require.NotNil(t, got.EditedAt)
	assert.True(t, now.Equal(*got.EditedAt))

	require.NoError(t, s.Tombstone(ctx, reply.ID, now.Add(-window)))
	assert.ErrorIs(t, s.Tombstone(ctx, reply.ID, now.Add(-window)), storage.ErrConditionFailed)
	assert.ErrorIs(t, s.Tombstone(ctx, 999, now.Add(-window)), storage.ErrNotFound)

	got, err = s.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletedForEveryone)
	assert.Empty(t, got.Content)

	convs, err := s.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].UpdatedAt.Equal(t0.Add(time.Second)))
}

func TestStatusAndUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, 1, 2, t0)
	require.NoError(t, err)
	scope := models.DirectScope(conv.ID)

	var ids []int64
	for i := 0; i < 3; i++ {
		m := &models.Message{Scope: scope, SenderID: 1, Content: "m", CreatedAt: t0.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.CreateMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	n, err := s.CountUnread(ctx, scope, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	affected, err := s.AdvanceStatus(ctx, ids[:1], 2, models.StatusRead)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = s.AdvanceStatus(ctx, ids, 2, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected, "read message stays read")

	got, err := s.GetMessage(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)

	affected, err = s.AdvanceStatus(ctx, ids, 3, models.StatusRead)
	require.NoError(t, err)
	assert.Zero(t, affected, "outsiders change nothing")

	require.NoError(t, s.HideMessage(ctx, ids[2], 2, t0))
	require.NoError(t, s.HideMessage(ctx, ids[2], 2, t0))

	n, err = s.CountUnread(ctx, scope, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, err := s.LastVisibleMessage(ctx, scope, 2)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, ids[1], last.ID)

	affected, err = s.MarkScopeRead(ctx, scope, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	_, err = s.MarkScopeRead(ctx, scope, 3)
	assert.ErrorIs(t, err, storage.ErrNotMember)
}

func TestGroupMembershipAndCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &models.Group{Name: "team", OwnerID: 1, CreatedAt: t0}
	require.NoError(t, s.CreateGroup(ctx, g, []int64{2, 3}))

	assert.ErrorIs(t, s.AddMember(ctx, g.ID, 1, 2, models.RoleMember, t0), storage.ErrAlreadyMember)
	assert.ErrorIs(t, s.AddMember(ctx, 999, 1, 2, models.RoleMember, t0), storage.ErrNotFound)
	assert.ErrorIs(t, s.RemoveMember(ctx, g.ID, 1, 1), storage.ErrLastAdmin)
	assert.ErrorIs(t, s.SetMemberRole(ctx, g.ID, 1, 1, models.RoleMember), storage.ErrLastAdmin)

	summaries, err := s.ListGroupsForUser(ctx, 3)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].MemberCount)
	assert.Equal(t, models.RoleMember, summaries[0].Role)

	scope := models.GroupScope(g.ID)
	var ids []int64
	for i := 0; i < 3; i++ {
		m := &models.Message{Scope: scope, SenderID: 1, Content: "m", CreatedAt: t0.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.CreateMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	_, err = s.AdvanceStatus(ctx, []int64{ids[1]}, 2, models.StatusRead)
	require.NoError(t, err)

	n, err := s.CountUnread(ctx, scope, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountUnread(ctx, scope, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.SetMemberRole(ctx, g.ID, 1, 2, models.RoleAdmin))
	require.NoError(t, s.RemoveMember(ctx, g.ID, 2, 1))
	assert.ErrorIs(t, s.RemoveMember(ctx, g.ID, 1, 1), storage.ErrNotFound)

	members, err := s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestMembershipWritesRecheckActor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &models.Group{Name: "team", OwnerID: 1, CreatedAt: t0}
	require.NoError(t, s.CreateGroup(ctx, g, []int64{2}))

	assert.ErrorIs(t, s.AddMember(ctx, g.ID, 2, 3, models.RoleMember, t0), storage.ErrNotAdmin)
	assert.ErrorIs(t, s.RemoveMember(ctx, g.ID, 2, 1), storage.ErrNotAdmin)
	assert.ErrorIs(t, s.SetMemberRole(ctx, g.ID, 2, 2, models.RoleAdmin), storage.ErrNotAdmin)

	// the group emptied out under a stale admin check
	require.NoError(t, s.RemoveMember(ctx, g.ID, 1, 2))
	require.NoError(t, s.RemoveMember(ctx, g.ID, 1, 1))
	assert.ErrorIs(t, s.AddMember(ctx, g.ID, 1, 3, models.RoleMember, t0), storage.ErrNotAdmin)

	members, err := s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

// removeAdminsConcurrently runs both removals at once against a fresh group of
// two admins (1, 2) and a member (3), and returns the errors and admins left.
func removeAdminsConcurrently(t *testing.T, s *Store, removals [2][2]int64) ([2]error, int) {
	t.Helper()
	ctx := context.Background()

	g := &models.Group{Name: "team", OwnerID: 1, CreatedAt: t0}
	require.NoError(t, s.CreateGroup(ctx, g, []int64{2, 3}))
	require.NoError(t, s.SetMemberRole(ctx, g.ID, 1, 2, models.RoleAdmin))

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i, rm := range removals {
		wg.Add(1)
		go func(i int, actor, user int64) {
			defer wg.Done()
			errs[i] = s.RemoveMember(ctx, g.ID, actor, user)
		}(i, rm[0], rm[1])
	}
	wg.Wait()

	members, err := s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	admins := 0
	for _, m := range members {
		if m.Role == models.RoleAdmin {
			admins++
		}
	}
	return errs, admins
}

func TestConcurrentAdminRemoval(t *testing.T) {
	s := newTestStore(t)

	cases := []struct {
		name     string
		removals [2][2]int64
		loser    error
	}{
		{"both leave", [2][2]int64{{1, 1}, {2, 2}}, storage.ErrLastAdmin},
		{"each removes the other", [2][2]int64{{1, 2}, {2, 1}}, storage.ErrNotAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				errs, admins := removeAdminsConcurrently(t, s, tc.removals)
				failed := 0
				for _, err := range errs {
					if err != nil {
						assert.ErrorIs(t, err, tc.loser)
						failed++
					}
				}
				assert.Equal(t, 1, failed)
				assert.Equal(t, 1, admins)
			}
		})
	}
}

func TestFriendships(t *testing.T) {
	newTestStore(t)
	ctx := context.Background()

	_, err := testDB.Exec(`INSERT INTO users (username) VALUES ('alice'), ('bob'), ('carol'), ('dave')`)
	require.NoError(t, err)
	_, err = testDB.Exec(`INSERT INTO friendships (user_id, friend_id, status, requested_by)
		VALUES (1, 2, 'accepted', 1), (3, 1, 'pending', 3), (4, 1, 'accepted', 4)`)
	require.NoError(t, err)

	f := NewFriendships(testDB)
	for _, tc := range []struct {
		a, b int64
		want bool
	}{
		{1, 2, true},
		{2, 1, true},
		{1, 4, true},
		{1, 3, false},
		{2, 3, false},
	} {
		ok, err := f.AreFriends(ctx, tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%d and %d", tc.a, tc.b)
	}
}

func TestSearchAndMutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, 1, 2, t0)
	require.NoError(t, err)
	scope := models.DirectScope(conv.ID)

	contents := []string{"100% done", "1000 done", "snake_case", "snakeXcase"}
	var ids []int64
	for i, c := range contents {
		m := &models.Message{Scope: scope, SenderID: 2, Content: c, CreatedAt: t0.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.CreateMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	found, err := s.SearchMessages(ctx, 1, "0%", 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids[0], found[0].ID)

	found, err = s.SearchMessages(ctx, 1, "E_C", 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids[2], found[0].ID)

	found, err = s.SearchMessages(ctx, 1, "done", 50)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, ids[1], found[0].ID, "newest first")

	require.NoError(t, s.HideMessage(ctx, ids[1], 1, t0))
	found, err = s.SearchMessages(ctx, 1, "done", 50)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = s.SearchMessages(ctx, 3, "done", 50)
	require.NoError(t, err)
	assert.Empty(t, found)

	muted, err := s.IsMuted(ctx, 1, models.MuteConversation, conv.ID)
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, s.SetMute(ctx, models.MuteState{UserID: 1, TargetKind: models.MuteConversation, TargetID: conv.ID, Muted: true}))
	targets, err := s.MutedTargets(ctx, 1, models.MuteConversation)
	require.NoError(t, err)
	assert.True(t, targets[conv.ID])

	require.NoError(t, s.SetMute(ctx, models.MuteState{UserID: 1, TargetKind: models.MuteConversation, TargetID: conv.ID, Muted: false}))
	muted, err = s.IsMuted(ctx, 1, models.MuteConversation, conv.ID)
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestResolveProfiles(t *testing.T) {
	newTestStore(t)
	ctx := context.Background()

	_, err := testDB.Exec(`INSERT INTO users (username, display_name, verified) VALUES ('alice', 'Alice', TRUE), ('bob', NULL, FALSE)`)
	require.NoError(t, err)

	profiles, err := NewProfiles(testDB).ResolveProfiles(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Alice", profiles[1].DisplayName)
	assert.True(t, profiles[1].Verified)
	assert.Equal(t, "bob", profiles[2].Username)
	assert.Empty(t, profiles[2].DisplayName)
}
