package service

import (
	"sync"

	"github.com/shinyyama/denifinder/internal/model"
	jww "github.com/spf13/jwalterweatherman"
)

// View receives everything the manager wants shown. Calls come from request
// goroutines and stream deliveries alike.
type View interface {
	RenderDirectory(list []model.ConversationSummary, activeID string)
	RenderMessages(convID string, msgs []model.Message)
	ShowError(message string)
}

type nopView struct{}

func (nopView) RenderDirectory([]model.ConversationSummary, string) {}
func (nopView) RenderMessages(string, []model.Message)              {}
func (nopView) ShowError(string)                                    {}

const (
	EventDirectory = "directory"
	EventMessages  = "messages"
	EventError     = "error"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type DirectoryEvent struct {
	Conversations []model.ConversationSummary `json:"conversations"`
	ActiveID      string                      `json:"activeId,omitempty"`
	TotalUnread   int                         `json:"totalUnread"`
}

type MessagesEvent struct {
	ConversationID string          `json:"conversationId"`
	Messages       []model.Message `json:"messages"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// EventFeed is a View that fans events out to any number of listeners.
// Listeners that fall behind lose events rather than block the manager.
type EventFeed struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
	onIdle func()
}

func NewEventFeed() *EventFeed {
	return &EventFeed{subs: make(map[int]chan Event)}
}

// OnIdle registers fn to run, outside the feed's lock, whenever the last
// listener unsubscribes.
func (f *EventFeed) OnIdle(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onIdle = fn
}

// Subscribe returns a channel of events and a func that ends the
// subscription and closes the channel.
func (f *EventFeed) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.next++
	key := f.next
	f.subs[key] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() { f.unsubscribe(key) })
	}
}

func (f *EventFeed) unsubscribe(key int) {
	f.mu.Lock()
	c, ok := f.subs[key]
	if ok {
		delete(f.subs, key)
		close(c)
	}
	var idle func()
	if ok && len(f.subs) == 0 && !f.closed {
		idle = f.onIdle
	}
	f.mu.Unlock()
	if idle != nil {
		idle()
	}
}

func (f *EventFeed) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription.
func (f *EventFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for key, ch := range f.subs {
		delete(f.subs, key)
		close(ch)
	}
}

func (f *EventFeed) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			jww.DEBUG.Printf("[feed] listener %d is behind, dropping %s event", key, ev.Type)
		}
	}
}

func (f *EventFeed) RenderDirectory(list []model.ConversationSummary, activeID string) {
	total := 0
	for _, s := range list {
		total += s.Unread
	}
	f.publish(Event{Type: EventDirectory, Data: DirectoryEvent{Conversations: list, ActiveID: activeID, TotalUnread: total}})
}

func (f *EventFeed) RenderMessages(convID string, msgs []model.Message) {
	f.publish(Event{Type: EventMessages, Data: MessagesEvent{ConversationID: convID, Messages: msgs}})
}

func (f *EventFeed) ShowError(message string) {
	f.publish(Event{Type: EventError, Data: ErrorEvent{Message: message}})
}
