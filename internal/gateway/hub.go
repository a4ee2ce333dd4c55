package gateway

import (
	"context"
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// fetchFunc re-runs a subscription's query against the current state.
type fetchFunc func(ctx context.Context) ([]Document, error)

// hub fans change signals out to the live subscriptions of a store whose
// writes all go through this process. A signal only marks a subscription
// dirty; its delivery goroutine then re-reads, so the last delivery always
// reflects every write that preceded the last signal.
type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*hubSubscription
}

type hubSubscription struct {
	h          *hub
	key        uint64
	collection string
	fetch      fetchFunc
	onChange   func([]Document)
	onError    func(error)
	wake       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*hubSubscription)}
}

func (h *hub) subscribe(ctx context.Context, collection string, fetch fetchFunc,
	onChange func([]Document), onError func(error)) *hubSubscription {
	sctx, cancel := context.WithCancel(ctx)
	s := &hubSubscription{
		h:          h,
		collection: collection,
		fetch:      fetch,
		onChange:   onChange,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		ctx:        sctx,
		cancel:     cancel,
	}
	h.mu.Lock()
	h.next++
	s.key = h.next
	h.subs[s.key] = s
	h.mu.Unlock()

	s.wake <- struct{}{}
	go s.run()
	return s
}

func (h *hub) publish(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.collection != collection {
			continue
		}
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*hubSubscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (s *hubSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		docs, err := s.fetch(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			jww.WARN.Printf("[gateway] subscription on %s failed to read: %+v", s.collection, err)
			if s.onError != nil {
				s.onError(err)
			}
			continue
		}
		s.onChange(docs)
	}
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.h.mu.Lock()
		delete(s.h.subs, s.key)
		s.h.mu.Unlock()
	})
}
