package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userUID, id string) error
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByConversation(ctx context.Context, userUID, convID string) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
}

type notificationRepository struct {
	store gateway.Store
}

func NewNotificationRepository(store gateway.Store) NotificationRepository {
	return &notificationRepository{store: store}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	id, err := r.store.Insert(ctx, CollectionNotifications, n.Record())
	if err != nil {
		return err
	}
	n.ID = id
	return nil
}

func unreadOf(userUID string) gateway.Query {
	return gateway.Query{}.
		Where("userId", gateway.OpEqual, userUID).
		Where("read", gateway.OpEqual, false)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if r.store == nil {
		return nil, ErrStoreNotReady
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := gateway.Query{}.Where("userId", gateway.OpEqual, userUID)
	if unreadOnly {
		q = unreadOf(userUID)
	}
	docs, err := r.store.Query(ctx, CollectionNotifications, q.Order("timestamp", gateway.Desc).Take(limit))
	if err != nil {
		return nil, err
	}
	list := make([]model.Notification, 0, len(docs))
	for _, d := range docs {
		list = append(list, *model.NotificationFromDocument(d.ID, d.Data))
	}
	return list, nil
}

func (r *notificationRepository) markRead(ctx context.Context, q gateway.Query) error {
	docs, err := r.store.Query(ctx, CollectionNotifications, q)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := r.store.Update(ctx, CollectionNotifications, d.ID, map[string]interface{}{"read": true}); err != nil {
			return err
		}
	}
	return nil
}

// MarkRead marks one notification read. Notifications of other users are
// reported as not found.
func (r *notificationRepository) MarkRead(ctx context.Context, userUID, id string) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	doc, err := r.store.Get(ctx, CollectionNotifications, id)
	if err != nil {
		return err
	}
	if model.NotificationFromDocument(doc.ID, doc.Data).UserID != userUID {
		return errors.Wrapf(ErrNotFound, "notification %s", id)
	}
	return r.store.Update(ctx, CollectionNotifications, id, map[string]interface{}{"read": true})
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	return r.markRead(ctx, unreadOf(userUID))
}

func (r *notificationRepository) MarkByConversation(ctx context.Context, userUID, convID string) error {
	if r.store == nil {
		return ErrStoreNotReady
	}
	return r.markRead(ctx, unreadOf(userUID).Where("data."+model.FieldConversationID, gateway.OpEqual, convID))
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	if r.store == nil {
		return 0, ErrStoreNotReady
	}
	docs, err := r.store.Query(ctx, CollectionNotifications, unreadOf(userUID))
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}
