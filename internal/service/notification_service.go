package service

import (
	"context"
	"time"

	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	jww "github.com/spf13/jwalterweatherman"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, message, convID, senderUID string)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userUID, id string) error
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByConversation(ctx context.Context, userUID, convID string) error
}

type notificationService struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo, now: time.Now}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, message, convID, senderUID string) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserID:         userUID,
		Type:           typ,
		Title:          title,
		Message:        message,
		ConversationID: convID,
		SenderID:       senderUID,
		Timestamp:      s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		jww.WARN.Printf("[notification] notifying %s failed: %+v", userUID, err)
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userUID, id string) error {
	if userUID == "" {
		return ErrNotAuthenticated
	}
	if id == "" {
		return ErrNotFound
	}
	return s.repo.MarkRead(ctx, userUID, id)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByConversation(ctx context.Context, userUID, convID string) error {
	if userUID == "" || convID == "" {
		return nil
	}
	return s.repo.MarkByConversation(ctx, userUID, convID)
}
