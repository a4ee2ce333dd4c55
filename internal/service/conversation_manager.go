package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	"github.com/shinyyama/denifinder/internal/session"
	jww "github.com/spf13/jwalterweatherman"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// notificationPreviewLen caps the message excerpt stored in notifications.
const notificationPreviewLen = 100

type Dependencies struct {
	Directory     *ConversationDirectory
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Properties    repository.PropertyRepository
	Notifications NotificationService
}

// ConversationManager is the messaging state of one signed-in user: the
// conversation list, the active conversation and its live message stream.
type ConversationManager struct {
	session *session.Session
	dir     *ConversationDirectory
	stream  *MessageStream
	unread  *UnreadTracker
	notify  NotificationService
	props   repository.PropertyRepository
	view    View

	// ctx bounds the stream subscriptions, which outlive any single request.
	ctx    context.Context
	cancel context.CancelFunc

	// ops serializes user operations; mu guards the fields below and is the
	// only lock stream deliveries take.
	ops sync.Mutex

	mu            sync.Mutex
	state         State
	activeID      string
	conversations []model.ConversationSummary
	messages      []model.Message
	generation    uint64
	signedOut     bool
}

func NewConversationManager(sess *session.Session, deps Dependencies, view View) (*ConversationManager, error) {
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	if deps.Directory == nil || deps.Conversations == nil || deps.Messages == nil {
		return nil, errors.New("conversation manager needs a directory and conversation and message repositories")
	}
	if view == nil {
		view = nopView{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConversationManager{
		session:       sess,
		dir:           deps.Directory,
		stream:        NewMessageStream(deps.Messages, deps.Conversations),
		unread:        NewUnreadTracker(deps.Conversations, deps.Notifications),
		notify:        deps.Notifications,
		props:         deps.Properties,
		view:          view,
		ctx:           ctx,
		cancel:        cancel,
		conversations: []model.ConversationSummary{},
	}, nil
}

func (m *ConversationManager) Session() *session.Session {
	return m.session
}

// Load replaces the conversation list. The manager is Loading meanwhile and
// afterwards returns to the state it was in.
func (m *ConversationManager) Load(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()
	return m.load(ctx)
}

func (m *ConversationManager) load(ctx context.Context) error {
	uid := m.session.UserID()
	m.mu.Lock()
	if m.signedOut {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	prev := m.state
	m.state = StateLoading
	m.mu.Unlock()

	list, err := m.dir.List(ctx, uid)

	m.mu.Lock()
	m.state = prev
	m.conversations = list
	sortDirectory(m.conversations)
	activeID := m.activeID
	clearActive := false
	if prev == StateActive {
		if i := m.indexOf(activeID); i >= 0 && m.conversations[i].Unread > 0 {
			m.unread.Clear(&m.conversations[i], uid)
			clearActive = true
		}
	}
	snapshot := m.directorySnapshot()
	m.mu.Unlock()

	if err != nil {
		m.view.ShowError("Could not load your conversations.")
		m.view.RenderDirectory(snapshot, activeID)
		return err
	}
	if clearActive {
		m.unread.Persist(ctx, activeID, uid)
	}
	m.view.RenderDirectory(snapshot, activeID)
	return nil
}

// Open makes convID the active conversation. Conversations missing from the
// list are looked up first; if that fails the state is left untouched.
func (m *ConversationManager) Open(ctx context.Context, convID string) error {
	m.ops.Lock()
	defer m.ops.Unlock()
	return m.open(ctx, convID)
}

func (m *ConversationManager) open(ctx context.Context, convID string) error {
	uid := m.session.UserID()
	m.mu.Lock()
	if m.signedOut {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	known := m.indexOf(convID) >= 0
	m.mu.Unlock()

	if !known {
		s, err := m.dir.Lookup(ctx, uid, convID)
		if err != nil {
			return errors.WithMessagef(err, "open %s", convID)
		}
		m.mu.Lock()
		if m.indexOf(convID) < 0 {
			m.conversations = append(m.conversations, *s)
			sortDirectory(m.conversations)
		}
		m.mu.Unlock()
	}

	m.stream.Detach()
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.state = StateActive
	m.activeID = convID
	m.messages = nil
	m.mu.Unlock()

	// Cleared before attaching so the stream's first delivery always lands
	// after it.
	m.view.RenderMessages(convID, []model.Message{})

	if _, err := m.stream.Attach(m.ctx, convID, func(msgs []model.Message) {
		m.deliver(gen, msgs)
	}); err != nil {
		m.mu.Lock()
		m.generation++
		m.state = StateIdle
		m.activeID = ""
		m.mu.Unlock()
		jww.ERROR.Printf("[manager] %s: opening %s failed: %+v", uid, convID, err)
		m.view.ShowError("Could not open the conversation.")
		return err
	}

	m.mu.Lock()
	if i := m.indexOf(convID); i >= 0 {
		m.unread.Clear(&m.conversations[i], uid)
	}
	snapshot := m.directorySnapshot()
	m.mu.Unlock()

	m.unread.Persist(ctx, convID, uid)
	m.view.RenderDirectory(snapshot, convID)
	return nil
}

// deliver applies a stream delivery unless a later Open or SignOut has
// superseded the stream it came from.
func (m *ConversationManager) deliver(gen uint64, msgs []model.Message) {
	m.mu.Lock()
	if gen != m.generation || m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	convID := m.activeID
	m.messages = msgs
	refreshed := false
	if n := len(msgs); n > 0 {
		if i := m.indexOf(convID); i >= 0 {
			last := msgs[n-1]
			s := &m.conversations[i]
			if !last.Timestamp.Before(s.LastTimestamp) {
				s.LastMessage = last.Body.Preview()
				s.LastTimestamp = last.Timestamp
				sortDirectory(m.conversations)
				refreshed = true
			}
		}
	}
	var snapshot []model.ConversationSummary
	if refreshed {
		snapshot = m.directorySnapshot()
	}
	m.mu.Unlock()

	m.view.RenderMessages(convID, msgs)
	if refreshed {
		m.view.RenderDirectory(snapshot, convID)
	}
}

// SendText sends text to the other participant of the active conversation.
func (m *ConversationManager) SendText(ctx context.Context, text string) (*model.Message, error) {
	m.ops.Lock()
	defer m.ops.Unlock()
	return m.send(ctx, model.TextBody{Text: strings.TrimSpace(text)})
}

// ShareProperty sends a property share to the active conversation.
func (m *ConversationManager) ShareProperty(ctx context.Context, propertyID string) (*model.Message, error) {
	m.ops.Lock()
	defer m.ops.Unlock()
	return m.send(ctx, model.NewPropertyShare(strings.TrimSpace(propertyID)))
}

func (m *ConversationManager) send(ctx context.Context, body model.Body) (*model.Message, error) {
	uid := m.session.UserID()
	m.mu.Lock()
	if m.signedOut {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if m.state != StateActive {
		m.mu.Unlock()
		return nil, ErrNoActiveConversation
	}
	convID := m.activeID
	var receiver string
	if i := m.indexOf(convID); i >= 0 {
		receiver, _ = m.conversations[i].Participants.Other(uid)
	}
	m.mu.Unlock()

	if receiver == "" {
		s, err := m.dir.Lookup(ctx, uid, convID)
		if err != nil {
			return nil, errors.WithMessagef(err, "send to %s", convID)
		}
		receiver = s.Other.ID
	}

	msg, err := m.stream.Send(ctx, convID, uid, receiver, body)
	if err != nil {
		if !errors.Is(err, ErrEmptyMessage) {
			jww.ERROR.Printf("[manager] %s: sending to %s failed: %+v", uid, convID, err)
			m.view.ShowError("Your message could not be sent.")
		}
		return nil, err
	}

	m.mu.Lock()
	if i := m.indexOf(convID); i >= 0 {
		s := &m.conversations[i]
		s.LastMessage = body.Preview()
		s.LastTimestamp = msg.Timestamp
		sortDirectory(m.conversations)
	}
	snapshot := m.directorySnapshot()
	active := m.activeID
	m.mu.Unlock()

	m.view.RenderDirectory(snapshot, active)
	m.notifyReceiver(ctx, convID, receiver, body)
	return msg, nil
}

func (m *ConversationManager) notifyReceiver(ctx context.Context, convID, receiver string, body model.Body) {
	if m.notify == nil {
		return
	}
	preview := []rune(body.Preview())
	if len(preview) > notificationPreviewLen {
		preview = append(preview[:notificationPreviewLen], '…')
	}
	me := m.session.User()
	m.notify.Notify(ctx, receiver, model.NotificationNewMessage,
		"New message from "+me.DisplayName, string(preview), convID, me.ID)
}

// StartConversation finds or creates the conversation with otherUID, opens
// it and sends opts.InitialMessage when one is given.
func (m *ConversationManager) StartConversation(ctx context.Context, otherUID string, opts FindOrCreateOptions) (*model.ConversationSummary, error) {
	m.ops.Lock()
	defer m.ops.Unlock()
	uid := m.session.UserID()
	if m.isSignedOut() {
		return nil, ErrNotAuthenticated
	}
	cv, err := m.dir.FindOrCreate(ctx, uid, otherUID, opts)
	if err != nil {
		return nil, err
	}
	// A failed reload is already reported; opening falls back to a lookup.
	_ = m.load(ctx)
	if err := m.open(ctx, cv.ID); err != nil {
		return nil, err
	}
	if text := strings.TrimSpace(opts.InitialMessage); text != "" {
		if _, err := m.send(ctx, model.TextBody{Text: text}); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOf(cv.ID); i >= 0 {
		s := copySummary(m.conversations[i])
		return &s, nil
	}
	return nil, ErrNotFound
}

// ShareableProperties lists the signed-in user's own listings.
func (m *ConversationManager) ShareableProperties(ctx context.Context) ([]model.Property, error) {
	if m.isSignedOut() {
		return nil, ErrNotAuthenticated
	}
	if m.props == nil {
		return []model.Property{}, nil
	}
	list, err := m.props.ListByOwner(ctx, m.session.UserID())
	if err != nil {
		return nil, err
	}
	for i := range list {
		for j, img := range list[i].Images {
			list[i].Images[j] = m.dir.avatars.Resolve(ctx, img)
		}
	}
	return list, nil
}

// Suspend leaves the active conversation when nobody is watching it: the
// stream is detached and the manager returns to Idle. The conversation list
// is kept, so a later Open resumes without a reload.
func (m *ConversationManager) Suspend() {
	m.ops.Lock()
	defer m.ops.Unlock()
	m.mu.Lock()
	if m.signedOut || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.generation++
	convID := m.activeID
	m.state = StateIdle
	m.activeID = ""
	m.messages = nil
	snapshot := m.directorySnapshot()
	m.mu.Unlock()

	m.stream.Detach()
	m.view.RenderDirectory(snapshot, "")
	jww.DEBUG.Printf("[manager] %s: left %s, stream detached", m.session.UserID(), convID)
}

// SignOut detaches the stream and clears all state. Every later operation
// fails with ErrNotAuthenticated.
func (m *ConversationManager) SignOut() {
	m.ops.Lock()
	defer m.ops.Unlock()
	m.stream.Detach()
	m.mu.Lock()
	if m.signedOut {
		m.mu.Unlock()
		return
	}
	m.signedOut = true
	m.generation++
	m.state = StateIdle
	m.activeID = ""
	m.conversations = []model.ConversationSummary{}
	m.messages = nil
	m.mu.Unlock()

	m.cancel()
	m.view.RenderDirectory([]model.ConversationSummary{}, "")
	m.view.RenderMessages("", []model.Message{})
	jww.INFO.Printf("[manager] %s signed out", m.session.UserID())
}

func (m *ConversationManager) State() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.activeID
}

func (m *ConversationManager) TotalUnread() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread.Total(m.conversations)
}

func (m *ConversationManager) Conversations() []model.ConversationSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directorySnapshot()
}

// Messages returns the latest delivery for the active conversation.
func (m *ConversationManager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *ConversationManager) isSignedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signedOut
}

// indexOf must be called with mu held.
func (m *ConversationManager) indexOf(convID string) int {
	for i := range m.conversations {
		if m.conversations[i].ID == convID {
			return i
		}
	}
	return -1
}

// directorySnapshot must be called with mu held.
func (m *ConversationManager) directorySnapshot() []model.ConversationSummary {
	out := make([]model.ConversationSummary, len(m.conversations))
	for i, s := range m.conversations {
		out[i] = copySummary(s)
	}
	return out
}

func copySummary(s model.ConversationSummary) model.ConversationSummary {
	counts := make(map[string]int, len(s.UnreadCounts))
	for k, v := range s.UnreadCounts {
		counts[k] = v
	}
	s.UnreadCounts = counts
	return s
}

func sortDirectory(list []model.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastTimestamp.After(list[j].LastTimestamp)
	})
}
