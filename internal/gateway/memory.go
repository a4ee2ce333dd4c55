package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryStore keeps every collection in process. It backs the development
// server and the tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	closed      bool
	hub         *hub
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
		hub:         newHub(),
	}
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.query(collection, q), nil
}

func (s *MemoryStore) query(collection string, q Query) []Document {
	docs := make([]Document, 0, len(s.collections[collection]))
	for id, data := range s.collections[collection] {
		docs = append(docs, Document{ID: id, Data: data})
	}
	res := evaluate(docs, q)
	for i := range res {
		res[i] = cloneDoc(res[i])
	}
	return res
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return Document{}, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	return cloneDoc(Document{ID: id, Data: data}), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate document id")
	}
	if err := s.Set(ctx, collection, id.String(), data); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Set stores data under a caller-chosen id, replacing any existing document.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]map[string]interface{})
		s.collections[collection] = coll
	}
	coll[id] = normalizeMap(data)
	s.mu.Unlock()

	s.hub.publish(collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	applyPatch(data, patch)
	s.mu.Unlock()

	s.hub.publish(collection)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, q Query,
	onChange func([]Document), onError func(error)) (Subscription, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	fetch := func(context.Context) ([]Document, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.query(collection, q), nil
	}
	return s.hub.subscribe(ctx, collection, fetch, onChange, onError), nil
}

// Subscriptions reports how many live subscriptions the store is serving.
func (s *MemoryStore) Subscriptions() int {
	return s.hub.count()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.closeAll()
	return nil
}
