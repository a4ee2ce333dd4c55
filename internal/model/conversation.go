package model

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Conversation document fields.
const (
	FieldParticipants  = "participants"
	FieldLastMessage   = "lastMessage"
	FieldLastTimestamp = "lastTimestamp"
	FieldUnreadCounts  = "unreadCounts"
	FieldPropertyID    = "propertyId"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"
)

var ErrInvalidParticipants = errors.New("a conversation needs two distinct participants")

// Participants holds the two user ids of a 1:1 conversation in ascending
// order, so the same pair always has the same value.
type Participants [2]string

func NewParticipants(a, b string) (Participants, error) {
	if a == "" || b == "" || a == b {
		return Participants{}, errors.Wrapf(ErrInvalidParticipants, "%q and %q", a, b)
	}
	ids := []string{a, b}
	sort.Strings(ids)
	return Participants{ids[0], ids[1]}, nil
}

func (p Participants) Has(uid string) bool {
	return uid != "" && (p[0] == uid || p[1] == uid)
}

// Other returns the participant that is not uid.
func (p Participants) Other(uid string) (string, bool) {
	switch uid {
	case p[0]:
		return p[1], true
	case p[1]:
		return p[0], true
	}
	return "", false
}

type Conversation struct {
	ID            string         `json:"id"`
	Participants  Participants   `json:"participants"`
	LastMessage   string         `json:"lastMessage"`
	LastTimestamp time.Time      `json:"lastTimestamp"`
	UnreadCounts  map[string]int `json:"unreadCounts"`
	PropertyID    string         `json:"propertyId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func (c *Conversation) UnreadFor(uid string) int {
	if n := c.UnreadCounts[uid]; n > 0 {
		return n
	}
	return 0
}

func (c *Conversation) Record() map[string]interface{} {
	unread := make(map[string]interface{}, 2)
	for _, uid := range c.Participants {
		unread[uid] = c.UnreadFor(uid)
	}
	rec := map[string]interface{}{
		FieldParticipants:  []string{c.Participants[0], c.Participants[1]},
		FieldLastMessage:   c.LastMessage,
		FieldLastTimestamp: c.LastTimestamp,
		FieldUnreadCounts:  unread,
		FieldCreatedAt:     c.CreatedAt,
		FieldUpdatedAt:     c.CreatedAt,
	}
	if c.PropertyID != "" {
		rec[FieldPropertyID] = c.PropertyID
	} else {
		rec[FieldPropertyID] = nil
	}
	return rec
}

func ConversationFromDocument(id string, data map[string]interface{}) (*Conversation, error) {
	if id == "" {
		return nil, errMissingID
	}
	ids := stringList(data, FieldParticipants)
	if len(ids) != 2 {
		return nil, errors.Wrapf(ErrInvalidParticipants, "conversation %s has %d participants", id, len(ids))
	}
	parts, err := NewParticipants(ids[0], ids[1])
	if err != nil {
		return nil, errors.WithMessagef(err, "conversation %s", id)
	}
	return &Conversation{
		ID:            id,
		Participants:  parts,
		LastMessage:   str(data, FieldLastMessage),
		LastTimestamp: instant(data, FieldLastTimestamp),
		UnreadCounts:  counts(data, FieldUnreadCounts),
		PropertyID:    str(data, FieldPropertyID),
		CreatedAt:     instant(data, FieldCreatedAt),
	}, nil
}

// ConversationSummary is a conversation as one participant sees it in their
// list.
type ConversationSummary struct {
	Conversation
	Other    Profile         `json:"other"`
	Property PropertySummary `json:"property"`
	Unread   int             `json:"unread"`
}
