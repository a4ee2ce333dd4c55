// Package session carries the signed-in user through the messaging core.
package session

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/model"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// Session is built once per signed-in user and handed to everything that acts
// on their behalf.
type Session struct {
	user      model.Profile
	startedAt time.Time
}

func New(user model.Profile) (*Session, error) {
	if user.ID == "" {
		return nil, ErrNotAuthenticated
	}
	if user.AvatarURL == "" {
		user.AvatarURL = model.DefaultAvatar
	}
	if user.DisplayName == "" {
		user.DisplayName = "Me"
	}
	return &Session{user: user, startedAt: time.Now()}, nil
}

func (s *Session) UserID() string {
	return s.user.ID
}

func (s *Session) User() model.Profile {
	return s.user
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}
