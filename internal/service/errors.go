package service

import (
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/repository"
	"github.com/shinyyama/denifinder/internal/session"
)

var (
	ErrNotFound             = repository.ErrNotFound
	ErrNotAuthenticated     = session.ErrNotAuthenticated
	ErrForbidden            = errors.New("forbidden")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrStreamAttached       = errors.New("a message stream is already attached")
)
