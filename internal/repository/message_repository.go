package repository

import (
	"context"

	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/model"
	jww "github.com/spf13/jwalterweatherman"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, convID string) ([]model.Message, error)
	// Watch delivers the conversation's full message list, oldest first, on
	// every change until the subscription is released.
	Watch(ctx context.Context, convID string, onChange func([]model.Message), onError func(error)) (gateway.Subscription, error)
}

type messageRepository struct {
	store gateway.Store
}

func NewMessageRepository(store gateway.Store) MessageRepository {
	return &messageRepository{store: store}
}

func byConversation(convID string) gateway.Query {
	return gateway.Query{}.
		Where(model.FieldConversationID, gateway.OpEqual, convID).
		Order(model.FieldTimestamp, gateway.Asc)
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	id, err := r.store.Insert(ctx, CollectionMessages, msg.Record())
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, convID string) ([]model.Message, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	docs, err := r.store.Query(ctx, CollectionMessages, byConversation(convID))
	if err != nil {
		return nil, err
	}
	return decodeMessages(docs), nil
}

func (r *messageRepository) Watch(ctx context.Context, convID string, onChange func([]model.Message), onError func(error)) (gateway.Subscription, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	return r.store.Subscribe(ctx, CollectionMessages, byConversation(convID), func(docs []gateway.Document) {
		onChange(decodeMessages(docs))
	}, onError)
}

func decodeMessages(docs []gateway.Document) []model.Message {
	msgs := make([]model.Message, 0, len(docs))
	for _, d := range docs {
		m, err := model.MessageFromDocument(d.ID, d.Data)
		if err != nil {
			jww.WARN.Printf("[repository] skipping message: %+v", err)
			continue
		}
		msgs = append(msgs, *m)
	}
	return msgs
}
