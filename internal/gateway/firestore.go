package gateway

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the production gateway: collections map one to one onto
// Firestore collections and Subscribe rides on query snapshots.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) query(collection string, q Query) firestore.Query {
	fq := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != nil {
		dir := firestore.Asc
		if q.OrderBy.Direction == Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy.Field, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	snaps, err := s.query(collection, q).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}
	return toDocuments(snaps), nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{}, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	return Document{ID: snap.Ref.ID, Data: normalizeMap(snap.Data())}, nil
}

func (s *FirestoreStore) Insert(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", errors.Wrapf(err, "insert into %s", collection)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return errors.Wrapf(err, "set %s/%s", collection, id)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(patch))
	for path, v := range patch {
		if inc, ok := v.(Increment); ok {
			v = firestore.Increment(int64(inc))
		}
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return errors.Wrapf(err, "update %s/%s", collection, id)
	}
	return nil
}

type firestoreSubscription struct {
	cancel context.CancelFunc
	iter   *firestore.QuerySnapshotIterator
}

func (s *firestoreSubscription) Unsubscribe() {
	s.cancel()
	s.iter.Stop()
}

func (s *FirestoreStore) Subscribe(ctx context.Context, collection string, q Query,
	onChange func([]Document), onError func(error)) (Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)
	iter := s.query(collection, q).Snapshots(sctx)
	sub := &firestoreSubscription{cancel: cancel, iter: iter}
	go func() {
		for {
			snap, err := iter.Next()
			if sctx.Err() != nil || err == iterator.Done || status.Code(err) == codes.Canceled {
				return
			}
			if err != nil {
				jww.WARN.Printf("[gateway] firestore snapshot on %s failed: %+v", collection, err)
				if onError != nil {
					onError(err)
				}
				return
			}
			snaps, err := snap.Documents.GetAll()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(toDocuments(snaps))
		}
	}()
	return sub, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func toDocuments(snaps []*firestore.DocumentSnapshot) []Document {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{ID: snap.Ref.ID, Data: normalizeMap(snap.Data())})
	}
	return docs
}
