package service_test

import (
	"context"
	"path/filepath"
	"testing"

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

// fixture wires the service layer onto sqlite and an in-process bus.
type fixture struct {
	store         *store.Store
	bus           *bus.Local
	authority     *service.Authority
	users         *service.UserService
	messages      *service.MessageService
	conversations *service.ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	st := store.New(db)
	require.NoError(t, st.Migrate())

	b := bus.NewLocal()
	log := logger.NewNop()
	authority := service.NewAuthority(st)
	messages := service.NewMessageService(st, authority, b, log)

	return &fixture{
		store:         st,
		bus:           b,
		authority:     authority,
		users:         service.NewUserService(st),
		messages:      messages,
		conversations: service.NewConversationService(st, authority, messages, b, log),
	}
}

func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()

	u := &model.User{Username: username, PasswordHash: "x"}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) group(t *testing.T, owner *model.User, members ...*model.User) *model.Conversation {
	t.Helper()

	usernames := make([]string, len(members))
	for i, m := range members {
		usernames[i] = m.Username
	}
	conv, err := f.conversations.CreateGroup(context.Background(), owner.ID, &model.CreateGroupRequest{
		Name:      "room",
		Usernames: usernames,
	})
	require.NoError(t, err)
	return conv
}

// collectEvents subscribes to the bus and returns the captured events by
// pointer; Local delivers synchronously so no waiting is needed.
func (f *fixture) collectEvents(t *testing.T) *[]bus.Event {
	t.Helper()

	var events []bus.Event
	stop, err := f.bus.Subscribe(func(ev bus.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	t.Cleanup(stop)
	return &events
}
