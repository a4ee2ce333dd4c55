package service

import (
	"context"
	"testing"

	"github.com/shinyyama/denifinder/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDirectory_FindOrCreateIsStable(t *testing.T) {
	f := newFixture(t)
	first := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	second := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	reversed := f.conversation(t, "landlord", "tenant", FindOrCreateOptions{})
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.ID, reversed.ID)
}

func TestDirectory_FindOrCreateNewConversation(t *testing.T) {
	f := newFixture(t)
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{InitialMessage: "hi", PropertyID: "p1"})

	stored, err := f.convs.FindByID(context.Background(), cv.ID)
	require.NoError(t, err)
	require.True(t, stored.Participants.Has("tenant"))
	require.True(t, stored.Participants.Has("landlord"))
	require.Equal(t, "hi", stored.LastMessage)
	require.Equal(t, 0, stored.UnreadFor("tenant"))
	require.Equal(t, "p1", stored.PropertyID)
}

func TestDirectory_FindOrCreateRejectsInvalidPairs(t *testing.T) {
	f := newFixture(t)
	_, err := f.deps.Directory.FindOrCreate(context.Background(), "tenant", "tenant", FindOrCreateOptions{})
	require.ErrorIs(t, err, model.ErrInvalidParticipants)
	_, err = f.deps.Directory.FindOrCreate(context.Background(), "", "tenant", FindOrCreateOptions{})
	require.ErrorIs(t, err, model.ErrInvalidParticipants)
}

func TestDirectory_ListEnrichesWithFallbacks(t *testing.T) {
	f := newFixture(t)
	known := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{PropertyID: "p1"})
	ghost := f.conversation(t, "tenant", "ghost", FindOrCreateOptions{PropertyID: "gone"})

	list, err := f.deps.Directory.List(context.Background(), "tenant")
	require.NoError(t, err)
	require.Len(t, list, 2)

	// ghost was created last, so it has the newer lastTimestamp.
	require.Equal(t, ghost.ID, list[0].ID)
	require.Equal(t, model.UnknownUserName, list[0].Other.DisplayName)
	require.Equal(t, model.DefaultAvatar, list[0].Other.AvatarURL)
	require.Equal(t, model.NoPropertySummary(), list[0].Property)

	require.Equal(t, known.ID, list[1].ID)
	require.Equal(t, "Larry Landlord", list[1].Other.DisplayName)
	require.Equal(t, "Sunny loft", list[1].Property.Title)
	require.Equal(t, "https://img.example/p1.jpg", list[1].Property.Image)
}

func TestDirectory_ListGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	f.store.failQuery.Store(true)

	list, err := f.deps.Directory.List(context.Background(), "tenant")
	require.ErrorIs(t, err, errNetwork)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestDirectory_Lookup(t *testing.T) {
	f := newFixture(t)
	cv := f.conversation(t, "tenant", "landlord", FindOrCreateOptions{})
	ctx := context.Background()

	s, err := f.deps.Directory.Lookup(ctx, "landlord", cv.ID)
	require.NoError(t, err)
	require.Equal(t, "Tina Tenant", s.Other.DisplayName)

	_, err = f.deps.Directory.Lookup(ctx, "agent", cv.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.deps.Directory.Lookup(ctx, "tenant", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
