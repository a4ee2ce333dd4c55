package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/media"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"
)

// enrichLimit bounds concurrent profile and property lookups per listing.
const enrichLimit = 8

type FindOrCreateOptions struct {
	InitialMessage string
	PropertyID     string
}

// ConversationDirectory lists a user's conversations and finds or creates the
// one between two users.
type ConversationDirectory struct {
	convs   repository.ConversationRepository
	users   repository.UserRepository
	props   repository.PropertyRepository
	avatars media.AvatarResolver
	now     func() time.Time
}

func NewConversationDirectory(convs repository.ConversationRepository, users repository.UserRepository,
	props repository.PropertyRepository, avatars media.AvatarResolver) *ConversationDirectory {
	if avatars == nil {
		avatars = media.NewStaticResolver(model.DefaultAvatar)
	}
	return &ConversationDirectory{convs: convs, users: users, props: props, avatars: avatars, now: time.Now}
}

// List returns uid's conversations, most recent activity first. On a gateway
// failure it returns an empty list together with the error.
func (d *ConversationDirectory) List(ctx context.Context, uid string) ([]model.ConversationSummary, error) {
	convs, err := d.convs.FindByUser(ctx, uid)
	if err != nil {
		jww.ERROR.Printf("[directory] listing conversations for %s failed: %+v", uid, err)
		return []model.ConversationSummary{}, errors.WithMessage(err, "list conversations")
	}
	out := make([]model.ConversationSummary, len(convs))
	var g errgroup.Group
	g.SetLimit(enrichLimit)
	for i := range convs {
		i := i
		g.Go(func() error {
			out[i] = d.summarize(ctx, uid, convs[i])
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// FindOrCreate returns the conversation between a and b, creating it when
// none exists. Two concurrent callers may both create one.
func (d *ConversationDirectory) FindOrCreate(ctx context.Context, a, b string, opts FindOrCreateOptions) (*model.Conversation, error) {
	parts, err := model.NewParticipants(a, b)
	if err != nil {
		return nil, err
	}
	existing, err := d.convs.FindByUser(ctx, a)
	if err != nil {
		return nil, errors.WithMessage(err, "find conversation")
	}
	for i := range existing {
		if existing[i].Participants.Has(b) {
			return &existing[i], nil
		}
	}
	now := d.now()
	cv := &model.Conversation{
		Participants:  parts,
		LastMessage:   opts.InitialMessage,
		LastTimestamp: now,
		UnreadCounts:  map[string]int{a: 0, b: 0},
		PropertyID:    opts.PropertyID,
		CreatedAt:     now,
	}
	if err := d.convs.Create(ctx, cv); err != nil {
		return nil, errors.WithMessage(err, "create conversation")
	}
	jww.INFO.Printf("[directory] created conversation %s between %s and %s", cv.ID, a, b)
	return cv, nil
}

// Lookup loads a single conversation for uid, e.g. from a deep link.
func (d *ConversationDirectory) Lookup(ctx context.Context, uid, convID string) (*model.ConversationSummary, error) {
	cv, err := d.convs.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !cv.Participants.Has(uid) {
		return nil, ErrForbidden
	}
	s := d.summarize(ctx, uid, *cv)
	return &s, nil
}

// Profile resolves a user's display information, falling back to the
// unknown-user placeholder.
func (d *ConversationDirectory) Profile(ctx context.Context, uid string) model.Profile {
	p := model.UnknownProfile(uid)
	if d.users != nil {
		found, err := d.users.FindByID(ctx, uid)
		switch {
		case err == nil:
			p = *found
		case !errors.Is(err, repository.ErrNotFound):
			jww.WARN.Printf("[directory] resolving user %s failed: %+v", uid, err)
		}
	}
	p.AvatarURL = d.avatars.Resolve(ctx, p.AvatarURL)
	return p
}

func (d *ConversationDirectory) property(ctx context.Context, id string) model.PropertySummary {
	if id == "" || d.props == nil {
		return model.NoPropertySummary()
	}
	p, err := d.props.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			jww.WARN.Printf("[directory] resolving property %s failed: %+v", id, err)
		}
		return model.NoPropertySummary()
	}
	s := p.Summary()
	s.Image = d.avatars.Resolve(ctx, s.Image)
	return s
}

func (d *ConversationDirectory) summarize(ctx context.Context, uid string, cv model.Conversation) model.ConversationSummary {
	other, _ := cv.Participants.Other(uid)
	return model.ConversationSummary{
		Conversation: cv,
		Other:        d.Profile(ctx, other),
		Property:     d.property(ctx, cv.PropertyID),
		Unread:       cv.UnreadFor(uid),
	}
}
