package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
)

func TestEnsureDirectIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	first, err := f.conversations.EnsureDirect(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	second, err := f.conversations.EnsureDirect(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	convs, err := f.conversations.List(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, convs.Total)
}

func TestEnsureDirectLostCreateRace(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	// Another caller created the pair's conversation but has not attached
	// the members yet, so the lookup cannot see it. The pair key makes
	// the second create a conflict instead of a second conversation.
	_, err := f.store.CreateDirectConversation(context.Background(), bob.ID, alice.ID)
	require.NoError(t, err)

	_, err = f.conversations.EnsureDirect(context.Background(), alice.ID, bob.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestEnsureDirectWithSelf(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.conversations.EnsureDirect(context.Background(), alice.ID, alice.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
}

func TestEnsureDirectUnknownUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.conversations.EnsureDirect(context.Background(), alice.ID, 999)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCreateGroupSkipsUnknownAndSelf(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	conv, err := f.conversations.CreateGroup(context.Background(), alice.ID, &model.CreateGroupRequest{
		Name:      "lunch",
		Usernames: []string{"bob", "ghost", "alice"},
	})
	require.NoError(t, err)
	require.Len(t, conv.Members, 2)

	roles := map[uint64]model.Role{}
	for _, m := range conv.Members {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, model.RoleOwner, roles[alice.ID])
	assert.Equal(t, model.RoleMember, roles[bob.ID])
}

func TestGetRequiresMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	mallory := f.user(t, "mallory")
	conv := f.group(t, alice)

	_, err := f.conversations.Get(context.Background(), mallory.ID, conv.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = f.conversations.Get(context.Background(), alice.ID, 999)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestUpdateMetadataRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	conv := f.group(t, alice, bob)

	_, err := f.conversations.UpdateMetadata(context.Background(), bob.ID, conv.ID, &model.UpdateConversationRequest{Name: "hijacked"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	updated, err := f.conversations.UpdateMetadata(context.Background(), alice.ID, conv.ID, &model.UpdateConversationRequest{
		Name:        "renamed",
		Description: "now with a description",
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "renamed", *updated.Name)
	require.NotNil(t, updated.Description)

	cleared, err := f.conversations.UpdateMetadata(context.Background(), alice.ID, conv.ID, &model.UpdateConversationRequest{ClearDescription: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.Description)
}

func TestAddMembersSkipsUnknownAndExisting(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	conv := f.group(t, alice, bob)

	resp, err := f.conversations.AddMembers(context.Background(), alice.ID, conv.ID, &model.AddMembersRequest{
		Usernames: []string{"carol", "ghost", "bob"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Added, 1)
	assert.Equal(t, carol.ID, resp.Added[0].UserID)
	assert.Len(t, resp.Conversation.Members, 3)
}

func TestAddMembersAppendsSystemMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.user(t, "bob")
	conv := f.group(t, alice)
	events := f.collectEvents(t)

	_, err := f.conversations.AddMembers(context.Background(), alice.ID, conv.ID, &model.AddMembersRequest{Usernames: []string{"bob"}})
	require.NoError(t, err)

	page, err := f.messages.Page(context.Background(), alice.ID, conv.ID, 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, model.MessageSystem, page.Messages[0].Kind)
	assert.Nil(t, page.Messages[0].AuthorID)
	require.NotNil(t, page.Messages[0].Content)
	assert.Equal(t, "bob joined the conversation", *page.Messages[0].Content)

	// The system message is announced and the membership change published.
	var types []model.EventType
	for _, ev := range *events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, model.EventNewMessage)
	assert.Contains(t, types, model.EventMembershipChanged)
}

func TestRemoveMemberRoleRules(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	conv := f.group(t, alice, bob, carol)

	// A plain member cannot remove anyone else.
	_, err := f.conversations.RemoveMember(context.Background(), bob.ID, conv.ID, carol.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	// An admin cannot remove an owner, and the attempt changes nothing.
	_, err = f.conversations.ChangeRole(context.Background(), alice.ID, conv.ID, bob.ID, model.RoleAdmin)
	require.NoError(t, err)
	_, err = f.conversations.RemoveMember(context.Background(), bob.ID, conv.ID, alice.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	m, err := f.store.MembershipOf(context.Background(), conv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, m.Role)

	// An admin removes a plain member.
	updated, err := f.conversations.RemoveMember(context.Background(), bob.ID, conv.ID, carol.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Members, 2)
}

func TestSoleOwnerCannotLeave(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	conv := f.group(t, alice, bob)

	_, err := f.conversations.RemoveMember(context.Background(), alice.ID, conv.ID, alice.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeSoleOwner, ae.Code)

	// With a second owner the original owner may leave.
	_, err = f.conversations.ChangeRole(context.Background(), alice.ID, conv.ID, bob.ID, model.RoleOwner)
	require.NoError(t, err)
	_, err = f.conversations.RemoveMember(context.Background(), alice.ID, conv.ID, alice.ID)
	require.NoError(t, err)
}

func TestMemberMayLeave(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	conv := f.group(t, alice, bob)
	events := f.collectEvents(t)

	updated, err := f.conversations.RemoveMember(context.Background(), bob.ID, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Members, 1)

	// The published member list no longer contains the leaver.
	var membership *model.Conversation
	for _, ev := range *events {
		if ev.Type == model.EventMembershipChanged {
			membership = ev.Conversation
		}
	}
	require.NotNil(t, membership)
	for _, m := range membership.Members {
		assert.NotEqual(t, bob.ID, m.UserID)
	}
}

func TestChangeRoleRules(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	conv := f.group(t, alice, bob, carol)

	// Plain members cannot change roles.
	_, err := f.conversations.ChangeRole(context.Background(), bob.ID, conv.ID, carol.ID, model.RoleAdmin)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = f.conversations.ChangeRole(context.Background(), alice.ID, conv.ID, bob.ID, model.RoleAdmin)
	require.NoError(t, err)

	// An admin cannot touch an owner or grant ownership.
	_, err = f.conversations.ChangeRole(context.Background(), bob.ID, conv.ID, alice.ID, model.RoleMember)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	_, err = f.conversations.ChangeRole(context.Background(), bob.ID, conv.ID, carol.ID, model.RoleOwner)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	// Unknown roles are rejected.
	_, err = f.conversations.ChangeRole(context.Background(), alice.ID, conv.ID, carol.ID, model.Role("sultan"))
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	// The sole owner cannot demote themselves.
	_, err = f.conversations.ChangeRole(context.Background(), alice.ID, conv.ID, alice.ID, model.RoleMember)
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeSoleOwner, ae.Code)
}

func TestDeleteConversationOwnerOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	conv := f.group(t, alice, bob)

	err := f.conversations.Delete(context.Background(), bob.ID, conv.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	require.NoError(t, f.conversations.Delete(context.Background(), alice.ID, conv.ID))
	_, err = f.conversations.Get(context.Background(), alice.ID, conv.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
