package repository

import (
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/gateway"
)

const (
	CollectionUsers         = "users"
	CollectionProperties    = "properties"
	CollectionConversations = "conversations"
	CollectionMessages      = "messages"
	CollectionNotifications = "notifications"
)

var (
	ErrStoreNotReady = errors.New("gateway store not initialized")
	// ErrNotFound is the gateway's not-found error, re-exported so callers
	// need not import the gateway.
	ErrNotFound = gateway.ErrNotFound
)
