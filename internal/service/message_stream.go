package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	jww "github.com/spf13/jwalterweatherman"
)

// StreamHandle is one live message subscription. Deliveries that start after
// Release are dropped even if the backend still has one in flight.
type StreamHandle struct {
	ConversationID string
	sub            gateway.Subscription
	released       atomic.Bool
}

func (h *StreamHandle) Release() {
	if h.released.Swap(true) {
		return
	}
	if h.sub != nil {
		h.sub.Unsubscribe()
	}
}

func (h *StreamHandle) Live() bool {
	return !h.released.Load()
}

// MessageStream keeps at most one standing subscription to a conversation's
// messages and writes new messages.
type MessageStream struct {
	msgs  repository.MessageRepository
	convs repository.ConversationRepository
	now   func() time.Time

	mu     sync.Mutex
	handle *StreamHandle
}

func NewMessageStream(msgs repository.MessageRepository, convs repository.ConversationRepository) *MessageStream {
	return &MessageStream{msgs: msgs, convs: convs, now: time.Now}
}

// Attach subscribes to convID. onChange receives the full message list,
// oldest first, on every change; it is never called synchronously.
func (s *MessageStream) Attach(ctx context.Context, convID string, onChange func([]model.Message)) (*StreamHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil && s.handle.Live() {
		return nil, ErrStreamAttached
	}
	h := &StreamHandle{ConversationID: convID}
	sub, err := s.msgs.Watch(ctx, convID, func(msgs []model.Message) {
		if h.Live() {
			onChange(msgs)
		}
	}, func(err error) {
		jww.WARN.Printf("[stream] conversation %s: %+v", convID, err)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "attach to %s", convID)
	}
	h.sub = sub
	s.handle = h
	jww.DEBUG.Printf("[stream] attached to %s", convID)
	return h, nil
}

// Detach releases the current subscription, if any.
func (s *MessageStream) Detach() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	if h != nil {
		h.Release()
		jww.DEBUG.Printf("[stream] detached from %s", h.ConversationID)
	}
}

// Attached returns the conversation currently streamed, or "".
func (s *MessageStream) Attached() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil || !s.handle.Live() {
		return ""
	}
	return s.handle.ConversationID
}

// Send stores the message and then refreshes the conversation preview and
// the receiver's unread count. The writes are independent; if the second
// fails the message is still returned.
func (s *MessageStream) Send(ctx context.Context, convID, senderID, receiverID string, body model.Body) (*model.Message, error) {
	if body == nil {
		return nil, ErrEmptyMessage
	}
	empty := model.MatchBody(body,
		func(b model.TextBody) bool { return strings.TrimSpace(b.Text) == "" },
		func(b model.PropertyShareBody) bool { return b.PropertyID == "" })
	if empty {
		return nil, ErrEmptyMessage
	}
	msg := &model.Message{
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Timestamp:      s.now(),
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, errors.WithMessage(err, "send message")
	}
	if err := s.convs.RecordMessage(ctx, convID, body.Preview(), msg.Timestamp, receiverID); err != nil {
		jww.WARN.Printf("[stream] message %s stored but conversation %s not updated: %+v", msg.ID, convID, err)
	}
	return msg, nil
}
