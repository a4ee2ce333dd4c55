package repository

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, uid string) (*model.Profile, error)
}

type userRepository struct {
	store gateway.Store
}

// NewUserRepository reads profiles from the users collection.
func NewUserRepository(store gateway.Store) UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) FindByID(ctx context.Context, uid string) (*model.Profile, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	doc, err := r.store.Get(ctx, CollectionUsers, uid)
	if err != nil {
		return nil, err
	}
	p := model.ProfileFromDocument(doc.ID, doc.Data)
	return &p, nil
}

type authUserRepository struct {
	client *auth.Client
}

// NewAuthUserRepository reads profiles from Firebase Auth user records, for
// accounts that never got a users document.
func NewAuthUserRepository(client *auth.Client) UserRepository {
	return &authUserRepository{client: client}
}

func (r *authUserRepository) FindByID(ctx context.Context, uid string) (*model.Profile, error) {
	if r.client == nil {
		return nil, ErrStoreNotReady
	}
	u, err := r.client.GetUser(ctx, uid)
	if auth.IsUserNotFound(err) {
		return nil, errors.Wrapf(ErrNotFound, "auth user %s", uid)
	}
	if err != nil {
		return nil, err
	}
	p := model.Profile{ID: u.UID, DisplayName: u.DisplayName, AvatarURL: u.PhotoURL, Email: u.Email}
	if p.DisplayName == "" {
		p.DisplayName = "User"
	}
	return &p, nil
}

type chainedUserRepository struct {
	repos []UserRepository
}

// ChainUserRepositories asks each repository in turn and returns the first
// profile found. The last error is returned when none has the user.
func ChainUserRepositories(repos ...UserRepository) UserRepository {
	return &chainedUserRepository{repos: repos}
}

func (r *chainedUserRepository) FindByID(ctx context.Context, uid string) (*model.Profile, error) {
	err := errors.Wrapf(ErrNotFound, "user %s", uid)
	for _, repo := range r.repos {
		var p *model.Profile
		p, err = repo.FindByID(ctx, uid)
		if err == nil {
			return p, nil
		}
	}
	return nil, err
}
