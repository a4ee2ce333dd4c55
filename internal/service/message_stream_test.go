package service

import (
	"context"
	"testing"
	"time"

	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	"github.com/stretchr/testify/require"
)

func newStream(f *fixture) *MessageStream {
	s := NewMessageStream(f.deps.Messages, f.deps.Conversations)
	s.now = f.clock.Now
	return s
}

func TestMessageStream_SingleAttachment(t *testing.T) {
	f := newFixture(t)
	s := newStream(f)
	ctx := context.Background()

	h, err := s.Attach(ctx, "c1", func([]model.Message) {})
	require.NoError(t, err)
	require.Equal(t, "c1", s.Attached())
	require.Equal(t, 1, f.mem.Subscriptions())

	_, err = s.Attach(ctx, "c2", func([]model.Message) {})
	require.ErrorIs(t, err, ErrStreamAttached)

	s.Detach()
	s.Detach()
	require.False(t, h.Live())
	require.Equal(t, "", s.Attached())
	require.Equal(t, 0, f.mem.Subscriptions())
}

func TestMessageStream_DeliversInSendOrder(t *testing.T) {
	f := newFixture(t)
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	s := newStream(f)
	ctx := context.Background()

	got := make(chan []model.Message, 16)
	_, err := s.Attach(ctx, cv.ID, func(msgs []model.Message) { got <- msgs })
	require.NoError(t, err)
	defer s.Detach()

	for _, text := range []string{"first", "second", "third"} {
		_, err := s.Send(ctx, cv.ID, "tenant", "landlord", model.TextBody{Text: text})
		require.NoError(t, err)
	}

	var last []model.Message
	require.Eventually(t, func() bool {
		for {
			select {
			case last = <-got:
			default:
				return len(last) == 3
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
	for i, text := range []string{"first", "second", "third"} {
		require.Equal(t, model.TextBody{Text: text}, last[i].Body)
	}
}

func TestMessageStream_Send(t *testing.T) {
	f := newFixture(t)
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	s := newStream(f)
	ctx := context.Background()

	msg, err := s.Send(ctx, cv.ID, "tenant", "landlord", model.TextBody{Text: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.False(t, msg.Read)

	stored, err := f.convs.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", stored.LastMessage)
	require.True(t, stored.LastTimestamp.Equal(msg.Timestamp))
	require.Equal(t, 1, stored.UnreadFor("landlord"))

	_, err = s.Send(ctx, cv.ID, "tenant", "landlord", model.TextBody{Text: "   "})
	require.ErrorIs(t, err, ErrEmptyMessage)
	_, err = s.Send(ctx, cv.ID, "tenant", "landlord", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestMessageStream_SendSurvivesPreviewFailure(t *testing.T) {
	f := newFixture(t)
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{InitialMessage: "hi"})
	s := newStream(f)
	ctx := context.Background()
	f.store.failUpdate.Store(true)

	msg, err := s.Send(ctx, cv.ID, "tenant", "landlord", model.NewPropertyShare("p1"))
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	msgs, err := repository.NewMessageRepository(f.mem).ListByConversation(ctx, cv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	stored, err := f.convs.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	require.Equal(t, "hi", stored.LastMessage)
}
