package service

import (
	"context"
	"sync"
	"time"

	"github.com/shinyyama/denifinder/internal/session"
	jww "github.com/spf13/jwalterweatherman"
)

// UserSession pairs a user's manager with the feed it renders into.
type UserSession struct {
	Manager *ConversationManager
	Feed    *EventFeed
}

// RegistryOptions bound how long an unattended session keeps server-side
// resources.
type RegistryOptions struct {
	// StreamGrace is how long the active conversation stays attached after
	// its last event listener disconnects.
	StreamGrace time.Duration
	// IdleTTL evicts a session that has had no listener and no request for
	// this long. Zero keeps sessions until sign-out.
	IdleTTL time.Duration
}

type registryEntry struct {
	ready chan struct{}
	us    *UserSession
	err   error

	// guarded by ManagerRegistry.mu
	lastUsed time.Time
	grace    *time.Timer
}

// ManagerRegistry holds one ConversationManager per signed-in user, created
// on first use.
type ManagerRegistry struct {
	deps Dependencies
	opts RegistryOptions
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry

	stop      chan struct{}
	closeOnce sync.Once
}

func NewManagerRegistry(deps Dependencies, opts RegistryOptions) *ManagerRegistry {
	r := &ManagerRegistry{
		deps:    deps,
		opts:    opts,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
		stop:    make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		go r.sweep(opts.IdleTTL / 2)
	}
	return r
}

// Get returns uid's session, building it and loading the conversation list
// if this is the first request for uid. Concurrent first requests share one
// build.
func (r *ManagerRegistry) Get(ctx context.Context, uid string) (*UserSession, error) {
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	r.mu.Lock()
	e, ok := r.entries[uid]
	if ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		select {
		case <-e.ready:
			return e.us, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e = &registryEntry{ready: make(chan struct{}), lastUsed: r.now()}
	r.entries[uid] = e
	r.mu.Unlock()

	e.us, e.err = r.build(ctx, uid)
	if e.err != nil {
		r.mu.Lock()
		if r.entries[uid] == e {
			delete(r.entries, uid)
		}
		r.mu.Unlock()
	} else {
		e.us.Feed.OnIdle(func() { r.listenersGone(e) })
	}
	close(e.ready)
	return e.us, e.err
}

func (r *ManagerRegistry) build(ctx context.Context, uid string) (*UserSession, error) {
	sess, err := session.New(r.deps.Directory.Profile(ctx, uid))
	if err != nil {
		return nil, err
	}
	feed := NewEventFeed()
	m, err := NewConversationManager(sess, r.deps, feed)
	if err != nil {
		return nil, err
	}
	if err := m.Load(ctx); err != nil {
		jww.WARN.Printf("[registry] initial load for %s failed: %+v", uid, err)
	}
	jww.INFO.Printf("[registry] session started for %s", uid)
	return &UserSession{Manager: m, Feed: feed}, nil
}

// listenersGone schedules the active stream to be detached once the grace
// period passes without a listener coming back.
func (r *ManagerRegistry) listenersGone(e *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.lastUsed = r.now()
	if e.grace != nil {
		e.grace.Stop()
	}
	e.grace = time.AfterFunc(r.opts.StreamGrace, func() {
		if e.us.Feed.Listeners() == 0 {
			e.us.Manager.Suspend()
		}
	})
}

func (r *ManagerRegistry) sweep(interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle signs out every session that has been unattended for IdleTTL and
// returns how many it removed.
func (r *ManagerRegistry) evictIdle() int {
	now := r.now()
	r.mu.Lock()
	var idle []*registryEntry
	for uid, e := range r.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.us == nil || e.us.Feed.Listeners() > 0 || now.Sub(e.lastUsed) < r.opts.IdleTTL {
			continue
		}
		delete(r.entries, uid)
		idle = append(idle, e)
		jww.INFO.Printf("[registry] evicting idle session for %s", uid)
	}
	r.mu.Unlock()
	for _, e := range idle {
		r.release(e)
	}
	return len(idle)
}

// Remove signs uid's manager out and forgets it.
func (r *ManagerRegistry) Remove(uid string) {
	r.mu.Lock()
	e, ok := r.entries[uid]
	delete(r.entries, uid)
	r.mu.Unlock()
	if ok {
		r.release(e)
	}
}

func (r *ManagerRegistry) release(e *registryEntry) {
	<-e.ready
	r.mu.Lock()
	if e.grace != nil {
		e.grace.Stop()
	}
	r.mu.Unlock()
	if e.us != nil {
		e.us.Manager.SignOut()
		e.us.Feed.Close()
	}
}

func (r *ManagerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops eviction and signs every manager out.
func (r *ManagerRegistry) Close() {
	r.closeOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	uids := make([]string, 0, len(r.entries))
	for uid := range r.entries {
		uids = append(uids, uid)
	}
	r.mu.Unlock()
	for _, uid := range uids {
		r.Remove(uid)
	}
}
