// Package gateway is the document store the messaging core talks to. A Store
// holds named collections of schemaless documents and supports field queries,
// single-document reads and writes, and live subscriptions that re-deliver the
// full result set on every change.
package gateway

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("store closed")
)

// Op is a filter comparison. The string values match Firestore's operators.
type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpArrayContains Op = "array-contains"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

func Where(field string, op Op, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents of one collection. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy *Order
	Limit   int
}

func (q Query) Where(field string, op Op, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Where(field, op, value))
	return q
}

func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = &Order{Field: field, Direction: dir}
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Document is one stored record. Data never contains the id.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Increment, used as a value in an Update patch, adds n to the numeric field
// (a missing field counts as zero).
type Increment int64

// Subscription is a live query. Unsubscribe is idempotent; a delivery that was
// already running when it is called may still complete.
type Subscription interface {
	Unsubscribe()
}

// Store is implemented by MemoryStore, SQLStore and FirestoreStore.
//
// Subscribe never calls onChange synchronously. Deliveries for a single
// subscription are sequential and each carries the complete, ordered result.
type Store interface {
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Insert(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	Update(ctx context.Context, collection, id string, patch map[string]interface{}) error
	Subscribe(ctx context.Context, collection string, q Query, onChange func([]Document), onError func(error)) (Subscription, error)
	Close() error
}

// Setter is implemented by stores that can write a document under a chosen
// id, replacing any previous content. Seeding and mirrored user profiles use
// it.
type Setter interface {
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Store  = (*SQLStore)(nil)
	_ Store  = (*FirestoreStore)(nil)
	_ Setter = (*MemoryStore)(nil)
	_ Setter = (*SQLStore)(nil)
	_ Setter = (*FirestoreStore)(nil)
)
