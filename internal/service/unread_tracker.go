package service

import (
	"context"

	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	jww "github.com/spf13/jwalterweatherman"
)

type UnreadTracker struct {
	convs         repository.ConversationRepository
	notifications NotificationService
}

func NewUnreadTracker(convs repository.ConversationRepository, notifications NotificationService) *UnreadTracker {
	return &UnreadTracker{convs: convs, notifications: notifications}
}

func (t *UnreadTracker) Total(list []model.ConversationSummary) int {
	total := 0
	for _, s := range list {
		if s.Unread > 0 {
			total += s.Unread
		}
	}
	return total
}

// Clear zeroes uid's local count on s.
func (t *UnreadTracker) Clear(s *model.ConversationSummary, uid string) {
	s.Unread = 0
	if s.UnreadCounts == nil {
		s.UnreadCounts = make(map[string]int, 2)
	}
	s.UnreadCounts[uid] = 0
}

// Persist writes the zeroed count and marks uid's message notifications for
// the conversation read. Failures are logged only.
func (t *UnreadTracker) Persist(ctx context.Context, convID, uid string) {
	if err := t.convs.ResetUnread(ctx, convID, uid); err != nil {
		jww.WARN.Printf("[unread] reset %s for %s failed: %+v", convID, uid, err)
	}
	if t.notifications != nil {
		if err := t.notifications.MarkByConversation(ctx, uid, convID); err != nil {
			jww.WARN.Printf("[unread] marking notifications of %s read failed: %+v", convID, err)
		}
	}
}

// MarkRead clears the local count and then persists it.
func (t *UnreadTracker) MarkRead(ctx context.Context, s *model.ConversationSummary, uid string) {
	t.Clear(s, uid)
	t.Persist(ctx, s.ID, uid)
}
