package service

import (
	"context"
	"testing"
	"time"

	"github.com/shinyyama/denifinder/internal/model"
	"github.com/stretchr/testify/require"
)

func TestManager_RequiresSession(t *testing.T) {
	f := newFixture(t)
	_, err := NewConversationManager(nil, f.deps, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestManager_LoadAndTotalUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	b := f.conversation(t, "agent", "tenant", FindOrCreateOptions{})
	f.conversation(t, "agent", "landlord", FindOrCreateOptions{})
	for _, rec := range []struct {
		id, receiver string
	}{{a.ID, "tenant"}, {a.ID, "tenant"}, {b.ID, "tenant"}, {b.ID, "agent"}} {
		require.NoError(t, f.convs.RecordMessage(ctx, rec.id, "msg", f.clock.Now(), rec.receiver))
	}

	m, view := f.manager(t, "tenant")
	require.NoError(t, m.Load(ctx))
	state, _ := m.State()
	require.Equal(t, StateIdle, state)

	list := m.Conversations()
	require.Len(t, list, 2)
	sum := 0
	for _, s := range list {
		sum += s.Unread
	}
	require.Equal(t, 3, sum)
	require.Equal(t, sum, m.TotalUnread())
	require.NotEmpty(t, view.directories)
}

func TestManager_LoadFailureShowsEmptyDirectory(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	m, view := f.manager(t, "tenant")
	f.store.failQuery.Store(true)

	err := m.Load(context.Background())
	require.ErrorIs(t, err, errNetwork)
	require.Empty(t, m.Conversations())
	require.Equal(t, 0, m.TotalUnread())
	require.Equal(t, 1, view.errorCount())
	state, _ := m.State()
	require.Equal(t, StateIdle, state)
}

func TestManager_OpenKeepsOneLiveStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	b := f.conversation(t, "tenant", "agent", FindOrCreateOptions{})
	m, _ := f.manager(t, "tenant")
	require.NoError(t, m.Load(ctx))

	require.NoError(t, m.Open(ctx, a.ID))
	require.Equal(t, 1, f.mem.Subscriptions())
	require.Equal(t, a.ID, m.stream.Attached())

	require.NoError(t, m.Open(ctx, b.ID))
	require.Equal(t, 1, f.mem.Subscriptions())
	require.Equal(t, b.ID, m.stream.Attached())
	state, active := m.State()
	require.Equal(t, StateActive, state)
	require.Equal(t, b.ID, active)
}

func TestManager_OpenMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	require.NoError(t, f.convs.RecordMessage(ctx, cv.ID, "ping", f.clock.Now(), "tenant"))
	f.deps.Notifications.Notify(ctx, "tenant", model.NotificationNewMessage, "New message", "ping", cv.ID, "landlord")

	m, _ := f.manager(t, "tenant")
	require.NoError(t, m.Load(ctx))
	require.Equal(t, 1, m.TotalUnread())

	require.NoError(t, m.Open(ctx, cv.ID))
	require.Equal(t, 0, m.TotalUnread())
	stored, err := f.convs.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.UnreadFor("tenant"))
	n, err := f.notes.CountUnread(ctx, "tenant")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestUnreadTracker_MarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	require.NoError(t, f.convs.RecordMessage(ctx, cv.ID, "ping", f.clock.Now(), "tenant"))
	list, err := f.deps.Directory.List(ctx, "tenant")
	require.NoError(t, err)
	require.Equal(t, 1, list[0].Unread)

	tracker := NewUnreadTracker(f.convs, f.deps.Notifications)
	for i := 0; i < 2; i++ {
		tracker.MarkRead(ctx, &list[0], "tenant")
		require.Equal(t, 0, list[0].Unread)
		require.Equal(t, 0, tracker.Total(list))
		stored, err := f.convs.FindByID(ctx, cv.ID)
		require.NoError(t, err)
		require.Equal(t, 0, stored.UnreadFor("tenant"))
	}
}

func TestManager_OpenUnknownConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	m, _ := f.manager(t, "tenant")

	err := m.Open(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	state, _ := m.State()
	require.Equal(t, StateIdle, state)

	// Not loaded yet, so this goes through the lookup path.
	require.NoError(t, m.Open(ctx, cv.ID))
	list := m.Conversations()
	require.Len(t, list, 1)
	require.Equal(t, "Larry Landlord", list[0].Other.DisplayName)

	outsider, _ := f.manager(t, "agent")
	require.ErrorIs(t, outsider.Open(ctx, cv.ID), ErrForbidden)
}

func TestManager_SendText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	m, view := f.manager(t, "tenant")
	require.NoError(t, m.Load(ctx))

	_, err := m.SendText(ctx, "hello")
	require.ErrorIs(t, err, ErrNoActiveConversation)

	require.NoError(t, m.Open(ctx, cv.ID))
	_, err = m.SendText(ctx, "  ")
	require.ErrorIs(t, err, ErrEmptyMessage)

	msg, err := m.SendText(ctx, " hello ")
	require.NoError(t, err)
	require.False(t, msg.Read)
	require.Equal(t, "landlord", msg.ReceiverID)
	require.Equal(t, model.TextBody{Text: "hello"}, msg.Body)

	stored, err := f.convs.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", stored.LastMessage)
	require.Equal(t, 1, stored.UnreadFor("landlord"))
	require.Equal(t, "hello", m.Conversations()[0].LastMessage)

	require.Eventually(t, func() bool {
		return len(view.lastMessages(cv.ID)) == 1 && len(m.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	notes, unread, err := f.deps.Notifications.List(ctx, "landlord", false, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)
	require.Equal(t, cv.ID, notes[0].ConversationID)
	require.Equal(t, "New message from tenant", notes[0].Title)
}

func TestManager_MessagesRenderInSendOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	tenant, view := f.manager(t, "tenant")
	landlord, _ := f.manager(t, "landlord")
	require.NoError(t, tenant.Open(ctx, cv.ID))
	require.NoError(t, landlord.Open(ctx, cv.ID))

	_, err := tenant.SendText(ctx, "is it available?")
	require.NoError(t, err)
	_, err = landlord.ShareProperty(ctx, "p1")
	require.NoError(t, err)
	_, err = tenant.SendText(ctx, "thanks")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(view.lastMessages(cv.ID)) == 3
	}, 2*time.Second, 10*time.Millisecond)
	msgs := view.lastMessages(cv.ID)
	require.Equal(t, model.TextBody{Text: "is it available?"}, msgs[0].Body)
	require.Equal(t, model.NewPropertyShare("p1"), msgs[1].Body)
	require.Equal(t, model.TextBody{Text: "thanks"}, msgs[2].Body)
	for i := 1; i < len(msgs); i++ {
		require.True(t, msgs[i-1].Timestamp.Before(msgs[i].Timestamp))
	}
}

func TestManager_DropsStaleDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	b := f.conversation(t, "tenant", "agent", FindOrCreateOptions{})
	m, view := f.manager(t, "tenant")

	require.NoError(t, m.Open(ctx, a.ID))
	m.mu.Lock()
	stale := m.generation
	m.mu.Unlock()
	require.NoError(t, m.Open(ctx, b.ID))

	m.deliver(stale, []model.Message{{ID: "late", ConversationID: a.ID, Body: model.TextBody{Text: "late"}, Timestamp: t0}})
	require.Empty(t, m.Messages())
	require.Empty(t, view.lastMessages(a.ID))
}

func TestManager_OpenRendersHistoryWithSlowWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	landlord, _ := f.manager(t, "landlord")
	require.NoError(t, landlord.Open(ctx, cv.ID))
	_, err := landlord.SendText(ctx, "hello there")
	require.NoError(t, err)

	f.store.updateDelay.Store(int64(20 * time.Millisecond))
	m, view := f.manager(t, "tenant")
	require.NoError(t, m.Load(ctx))
	require.NoError(t, m.Open(ctx, cv.ID))

	require.Eventually(t, func() bool {
		return len(m.Messages()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Len(t, view.lastMessages(cv.ID), 1)
	require.Equal(t, "hello there", view.lastMessages(cv.ID)[0].Body.Preview())
}

func TestManager_StartConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, _ := f.manager(t, "tenant")

	s, err := m.StartConversation(ctx, "landlord", FindOrCreateOptions{InitialMessage: "hi", PropertyID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "hi", s.LastMessage)
	require.Equal(t, "Sunny loft", s.Property.Title)
	require.Equal(t, 0, s.Unread)
	state, active := m.State()
	require.Equal(t, StateActive, state)
	require.Equal(t, s.ID, active)

	again, err := m.StartConversation(ctx, "landlord", FindOrCreateOptions{})
	require.NoError(t, err)
	require.Equal(t, s.ID, again.ID)
	require.Len(t, m.Conversations(), 1)

	_, err = m.StartConversation(ctx, "tenant", FindOrCreateOptions{})
	require.ErrorIs(t, err, model.ErrInvalidParticipants)
}

func TestManager_ShareableProperties(t *testing.T) {
	f := newFixture(t)
	landlord, _ := f.manager(t, "landlord")
	list, err := landlord.ShareableProperties(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "p1", list[0].ID)

	tenant, _ := f.manager(t, "tenant")
	list, err = tenant.ShareableProperties(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestManager_SignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	m, _ := f.manager(t, "tenant")
	require.NoError(t, m.Open(ctx, cv.ID))
	require.Equal(t, 1, f.mem.Subscriptions())

	m.SignOut()
	m.SignOut()
	require.Equal(t, 0, f.mem.Subscriptions())
	state, active := m.State()
	require.Equal(t, StateIdle, state)
	require.Empty(t, active)
	require.Empty(t, m.Conversations())

	require.ErrorIs(t, m.Load(ctx), ErrNotAuthenticated)
	require.ErrorIs(t, m.Open(ctx, cv.ID), ErrNotAuthenticated)
	_, err := m.SendText(ctx, "hi")
	require.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = m.StartConversation(ctx, "landlord", FindOrCreateOptions{})
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "loading", StateLoading.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "State(9)", State(9).String())
}
