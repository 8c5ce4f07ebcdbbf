package hub

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parley-chat/messaging-platform/internal/bus"
	"github.com/parley-chat/messaging-platform/internal/model"
	"github.com/parley-chat/messaging-platform/internal/service"
	"github.com/parley-chat/messaging-platform/internal/store"
	"github.com/parley-chat/messaging-platform/pkg/logger"
)

type hubFixture struct {
	hub   *Hub
	bus   *bus.Local
	store *store.Store
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate())

	b := bus.NewLocal()
	h := New(service.NewAuthority(st), b, logger.NewNop())
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)

	return &hubFixture{hub: h, bus: b, store: st}
}

// fakeClient builds a registered client without a websocket behind it.
func (f *hubFixture) fakeClient(t *testing.T, userID uint64, buffer int) *Client {
	t.Helper()

	c := &Client{
		hub:    f.hub,
		userID: userID,
		send:   make(chan []byte, buffer),
		rooms:  make(map[uint64]struct{}),
	}
	f.hub.register(c)
	return c
}

func (f *hubFixture) member(t *testing.T, username string, conversationID uint64) *model.User {
	t.Helper()

	u := &model.User{Username: username, PasswordHash: "x"}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	require.NoError(t, f.store.AddMembership(context.Background(), &model.Membership{
		ConversationID: conversationID,
		UserID:         u.ID,
		Role:           model.RoleMember,
	}))
	return u
}

func (f *hubFixture) conversation(t *testing.T) *model.Conversation {
	t.Helper()

	conv, err := f.store.CreateConversation(context.Background(), model.KindGroup, nil, nil)
	require.NoError(t, err)
	return conv
}

func decodeEvent(t *testing.T, data []byte) model.ServerEvent {
	t.Helper()

	var ev model.ServerEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestJoinLeaveRoomSize(t *testing.T) {
	f := newHubFixture(t)
	c1 := f.fakeClient(t, 1, 8)
	c2 := f.fakeClient(t, 2, 8)

	f.hub.join(c1, 10)
	f.hub.join(c2, 10)
	assert.Equal(t, 2, f.hub.RoomSize(10))

	f.hub.leave(c1, 10)
	assert.Equal(t, 1, f.hub.RoomSize(10))

	f.hub.unregister(c2)
	assert.Equal(t, 0, f.hub.RoomSize(10))
}

func TestDeliverNoCrossRoomTalk(t *testing.T) {
	f := newHubFixture(t)
	inRoom := f.fakeClient(t, 1, 8)
	elsewhere := f.fakeClient(t, 2, 8)
	f.hub.join(inRoom, 10)
	f.hub.join(elsewhere, 20)

	content := "hello"
	require.NoError(t, f.bus.Publish(context.Background(), bus.Event{
		Type:           model.EventNewMessage,
		ConversationID: 10,
		Message:        &model.Message{ID: 1, ConversationID: 10, Content: &content},
	}))

	select {
	case data := <-inRoom.send:
		ev := decodeEvent(t, data)
		assert.Equal(t, model.EventNewMessage, ev.Type)
		assert.Equal(t, uint64(10), ev.ConversationID)
		require.NotNil(t, ev.Message)
		assert.Equal(t, uint64(1), ev.Message.ID)
	default:
		t.Fatal("expected delivery to the joined client")
	}
	assert.Empty(t, elsewhere.send)
}

func TestDeliverSanitizesDeletedContent(t *testing.T) {
	f := newHubFixture(t)
	c := f.fakeClient(t, 1, 8)
	f.hub.join(c, 10)

	content := "secret"
	require.NoError(t, f.bus.Publish(context.Background(), bus.Event{
		Type:           model.EventNewMessage,
		ConversationID: 10,
		Message:        &model.Message{ID: 1, ConversationID: 10, Content: &content, IsDeleted: true},
	}))

	ev := decodeEvent(t, <-c.send)
	require.NotNil(t, ev.Message)
	assert.True(t, ev.Message.IsDeleted)
	assert.Nil(t, ev.Message.Content)
}

func TestAnnounceFromNonMemberDropped(t *testing.T) {
	f := newHubFixture(t)
	conv := f.conversation(t)
	outsider := f.fakeClient(t, 999, 8)
	listener := f.fakeClient(t, 1, 8)
	f.hub.join(outsider, conv.ID)
	f.hub.join(listener, conv.ID)

	content := "spoof"
	f.hub.announce(context.Background(), outsider, model.ClientEvent{
		Type:           model.EventAnnounce,
		ConversationID: conv.ID,
		Message:        &model.Message{ID: 1, Content: &content},
	})

	// Silently dropped: no error event exists and nothing is broadcast.
	assert.Empty(t, listener.send)
	assert.Empty(t, outsider.send)
}

func TestAnnounceFromMemberBroadcastsToRoomIncludingSender(t *testing.T) {
	f := newHubFixture(t)
	conv := f.conversation(t)
	alice := f.member(t, "alice", conv.ID)
	bob := f.member(t, "bob", conv.ID)

	sender := f.fakeClient(t, alice.ID, 8)
	receiver := f.fakeClient(t, bob.ID, 8)
	f.hub.join(sender, conv.ID)
	f.hub.join(receiver, conv.ID)

	content := "hi"
	f.hub.announce(context.Background(), sender, model.ClientEvent{
		Type:           model.EventAnnounce,
		ConversationID: conv.ID,
		Message:        &model.Message{ID: 7, Content: &content},
	})

	for _, c := range []*Client{sender, receiver} {
		ev := decodeEvent(t, <-c.send)
		assert.Equal(t, model.EventNewMessage, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, uint64(7), ev.Message.ID)
		assert.Equal(t, conv.ID, ev.Message.ConversationID)
	}
}

func TestSlowClientEvicted(t *testing.T) {
	f := newHubFixture(t)
	slow := f.fakeClient(t, 1, 1)
	fast := f.fakeClient(t, 2, 8)
	f.hub.join(slow, 10)
	f.hub.join(fast, 10)

	content := "tick"
	for i := 0; i < 3; i++ {
		require.NoError(t, f.bus.Publish(context.Background(), bus.Event{
			Type:           model.EventNewMessage,
			ConversationID: 10,
			Message:        &model.Message{ID: uint64(i + 1), ConversationID: 10, Content: &content},
		}))
	}

	// The slow client filled its buffer and was dropped from the room;
	// the fast one saw everything.
	assert.Equal(t, 1, f.hub.RoomSize(10))
	assert.Len(t, fast.send, 3)
}
