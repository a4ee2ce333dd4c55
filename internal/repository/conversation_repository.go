package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/model"
	jww "github.com/spf13/jwalterweatherman"
)

type ConversationRepository interface {
	Create(ctx context.Context, cv *model.Conversation) error
	FindByUser(ctx context.Context, uid string) ([]model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	RecordMessage(ctx context.Context, convID, preview string, at time.Time, receiverUID string) error
	ResetUnread(ctx context.Context, convID, uid string) error
}

type conversationRepository struct {
	store gateway.Store
}

func NewConversationRepository(store gateway.Store) ConversationRepository {
	return &conversationRepository{store: store}
}

func (r *conversationRepository) Create(ctx context.Context, cv *model.Conversation) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	id, err := r.store.Insert(ctx, CollectionConversations, cv.Record())
	if err != nil {
		return err
	}
	cv.ID = id
	return nil
}

// FindByUser returns the conversations uid takes part in, most recent
// activity first. Malformed documents are skipped.
func (r *conversationRepository) FindByUser(ctx context.Context, uid string) ([]model.Conversation, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	q := gateway.Query{}.
		Where(model.FieldParticipants, gateway.OpArrayContains, uid).
		Order(model.FieldLastTimestamp, gateway.Desc)
	docs, err := r.store.Query(ctx, CollectionConversations, q)
	if err != nil {
		return nil, err
	}
	list := make([]model.Conversation, 0, len(docs))
	for _, d := range docs {
		cv, err := model.ConversationFromDocument(d.ID, d.Data)
		if err != nil {
			jww.WARN.Printf("[repository] skipping conversation: %+v", err)
			continue
		}
		list = append(list, *cv)
	}
	return list, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	doc, err := r.store.Get(ctx, CollectionConversations, id)
	if err != nil {
		return nil, err
	}
	return model.ConversationFromDocument(doc.ID, doc.Data)
}

// RecordMessage refreshes the denormalized preview after a send and bumps the
// receiver's unread counter.
func (r *conversationRepository) RecordMessage(ctx context.Context, convID, preview string, at time.Time, receiverUID string) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	patch := map[string]interface{}{
		model.FieldLastMessage:   preview,
		model.FieldLastTimestamp: at,
		model.FieldUpdatedAt:     at,
	}
	if receiverUID != "" {
		patch[model.FieldUnreadCounts+"."+receiverUID] = gateway.Increment(1)
	}
	return errors.WithMessage(r.store.Update(ctx, CollectionConversations, convID, patch), "record message")
}

func (r *conversationRepository) ResetUnread(ctx context.Context, convID, uid string) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	return r.store.Update(ctx, CollectionConversations, convID, map[string]interface{}{
		model.FieldUnreadCounts + "." + uid: 0,
	})
}
