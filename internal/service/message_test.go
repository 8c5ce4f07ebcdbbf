package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/messaging-platform/internal/apperr"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/service"
)

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	conv := f.group(t, alice)

	_, err := f.messages.Send(context.Background(), alice.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "   ",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = f.messages.Send(context.Background(), alice.ID, &model.SendMessageRequest{
		ConversationID: 999,
		Content:        "hello",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSendRequiresMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	mallory := f.user(t, "mallory")
	conv := f.group(t, alice)

	_, err := f.messages.Send(context.Background(), mallory.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "let me in",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	// Nothing was persisted and nothing announced.
	page, err := f.messages.Page(context.Background(), alice.ID, conv.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestSendDoesNotAnnounce(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	conv := f.group(t, alice)
	events := f.collectEvents(t)

	msg, err := f.messages.Send(context.Background(), alice.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hi",
	})
	require.NoError(t, err)
	require.NotZero(t, msg.ID)

	// Announcing a persisted user message is the sender's job over the
	// realtime channel, not the persist call's.
	assert.Empty(t, *events)
}

func TestAppendSystemAnnounces(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	conv := f.group(t, alice)
	events := f.collectEvents(t)

	msg, err := f.messages.AppendSystem(context.Background(), conv.ID, "alice joined the conversation")
	require.NoError(t, err)
	assert.Equal(t, model.MessageSystem, msg.Kind)
	assert.Nil(t, msg.AuthorID)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, model.EventNewMessage, ev.Type)
	assert.Equal(t, conv.ID, ev.ConversationID)
	require.NotNil(t, ev.Message)
	assert.Equal(t, msg.ID, ev.Message.ID)
}

func TestDeleteAuthorOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	conv := f.group(t, alice, bob)

	msg, err := f.messages.Send(context.Background(), alice.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "mine",
	})
	require.NoError(t, err)

	err = f.messages.Delete(context.Background(), bob.ID, msg.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	require.NoError(t, f.messages.Delete(context.Background(), alice.ID, msg.ID))
	// Idempotent second delete.
	require.NoError(t, f.messages.Delete(context.Background(), alice.ID, msg.ID))

	page, err := f.messages.Page(context.Background(), bob.ID, conv.ID, 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsDeleted)
	assert.Nil(t, page.Messages[0].Content)
}

func TestPageRequiresMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	mallory := f.user(t, "mallory")
	conv := f.group(t, alice)

	_, err := f.messages.Page(context.Background(), mallory.ID, conv.ID, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestAuthorizeRanks(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	conv := f.group(t, alice, bob)

	// Members read and post but do not administer.
	for _, action := range []service.Action{service.ActionRead, service.ActionPost} {
		role, err := f.authority.Authorize(context.Background(), bob.ID, conv.ID, action)
		require.NoError(t, err)
		assert.Equal(t, model.RoleMember, role)
	}
	for _, action := range []service.Action{service.ActionEditMetadata, service.ActionAddMembers, service.ActionRemoveOther, service.ActionChangeRole} {
		_, err := f.authority.Authorize(context.Background(), bob.ID, conv.ID, action)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	}

	// Owners clear every gate.
	for _, action := range []service.Action{service.ActionRead, service.ActionPost, service.ActionEditMetadata, service.ActionChangeRole} {
		role, err := f.authority.Authorize(context.Background(), alice.ID, conv.ID, action)
		require.NoError(t, err)
		assert.Equal(t, model.RoleOwner, role)
	}

	// Role changes apply on the next check; nothing is cached.
	_, err := f.conversations.ChangeRole(context.Background(), alice.ID, conv.ID, bob.ID, model.RoleAdmin)
	require.NoError(t, err)
	role, err := f.authority.Authorize(context.Background(), bob.ID, conv.ID, service.ActionEditMetadata)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, role)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Register(context.Background(), "al", "password123")
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
	_, err = f.users.Register(context.Background(), "alice", "short")
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	u, err := f.users.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", u.PasswordHash)

	got, err := f.users.Authenticate(context.Background(), "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.users.Authenticate(context.Background(), "alice", "wrongpass")
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	_, err = f.users.Authenticate(context.Background(), "ghost", "password123")
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}
