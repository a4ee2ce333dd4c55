package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	jww.SetStdoutThreshold(jww.LevelDebug)
	os.Exit(m.Run())
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// runStoreSuite checks the behavior every Store backend must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("query filters order and limit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for i, parts := range [][]string{{"a", "b"}, {"a", "c"}, {"b", "c"}, {"a", "d"}} {
			_, err := s.Insert(ctx, "conversations", map[string]interface{}{
				"participants":  parts,
				"lastTimestamp": base.Add(time.Duration(i) * time.Minute),
				"lastMessage":   parts[1],
			})
			require.NoError(t, err)
		}

		q := Query{}.Where("participants", OpArrayContains, "a").Order("lastTimestamp", Desc)
		docs, err := s.Query(ctx, "conversations", q)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		require.Equal(t, "d", docs[0].Data["lastMessage"])
		require.Equal(t, "c", docs[1].Data["lastMessage"])
		require.Equal(t, "b", docs[2].Data["lastMessage"])

		ts, ok := docs[0].Data["lastTimestamp"].(time.Time)
		require.True(t, ok, "timestamps come back as time.Time, got %T", docs[0].Data["lastTimestamp"])
		require.True(t, ts.Equal(base.Add(3*time.Minute)))

		docs, err = s.Query(ctx, "conversations", q.Take(1))
		require.NoError(t, err)
		require.Len(t, docs, 1)

		docs, err = s.Query(ctx, "conversations", Query{}.Where("lastTimestamp", OpGreaterEqual, base.Add(2*time.Minute)))
		require.NoError(t, err)
		require.Len(t, docs, 2)
	})

	t.Run("get missing document", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), "messages", "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update paths and increments", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id, err := s.Insert(ctx, "conversations", map[string]interface{}{
			"lastMessage":  "",
			"unreadCounts": map[string]int{"a": 0, "b": 2},
		})
		require.NoError(t, err)

		require.NoError(t, s.Update(ctx, "conversations", id, map[string]interface{}{
			"lastMessage":    "hello",
			"unreadCounts.a": Increment(1),
			"unreadCounts.b": 0,
			"unreadCounts.c": Increment(3),
		}))
		doc, err := s.Get(ctx, "conversations", id)
		require.NoError(t, err)
		require.Equal(t, id, doc.ID)
		require.Equal(t, "hello", doc.Data["lastMessage"])
		require.Equal(t, map[string]interface{}{"a": int64(1), "b": int64(0), "c": int64(3)}, doc.Data["unreadCounts"])

		err = s.Update(ctx, "conversations", "missing", map[string]interface{}{"lastMessage": "x"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("subscribe delivers full ordered results", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		got := make(chan []Document, 16)
		q := Query{}.Where("conversationId", OpEqual, "c1").Order("timestamp", Asc)
		sub, err := s.Subscribe(ctx, "messages", q, func(docs []Document) { got <- docs }, nil)
		require.NoError(t, err)

		first := <-got
		require.Empty(t, first)

		_, err = s.Insert(ctx, "messages", map[string]interface{}{"conversationId": "c1", "text": "two", "timestamp": base.Add(time.Second)})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "messages", map[string]interface{}{"conversationId": "c1", "text": "one", "timestamp": base})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "messages", map[string]interface{}{"conversationId": "c2", "text": "other", "timestamp": base})
		require.NoError(t, err)

		var last []Document
		require.Eventually(t, func() bool {
			for {
				select {
				case last = <-got:
				default:
					return len(last) == 2
				}
			}
		}, 2*time.Second, 10*time.Millisecond)
		require.Equal(t, "one", last[0].Data["text"])
		require.Equal(t, "two", last[1].Data["text"])

		time.Sleep(50 * time.Millisecond)
		for len(got) > 0 {
			<-got
		}
		sub.Unsubscribe()
		sub.Unsubscribe()
		_, err = s.Insert(ctx, "messages", map[string]interface{}{"conversationId": "c1", "text": "three", "timestamp": base.Add(time.Minute)})
		require.NoError(t, err)
		select {
		case docs := <-got:
			require.Fail(t, "delivery after unsubscribe", "%d docs", len(docs))
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s := NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_SubscriptionCount(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	sub, err := s.Subscribe(context.Background(), "messages", Query{}, func([]Document) {}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.Subscriptions())
	sub.Unsubscribe()
	require.Equal(t, 0, s.Subscriptions())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	id, err := s.Insert(ctx, "users", map[string]interface{}{"displayName": "Mary"})
	require.NoError(t, err)
	doc, err := s.Get(ctx, "users", id)
	require.NoError(t, err)
	doc.Data["displayName"] = "changed"

	doc, err = s.Get(ctx, "users", id)
	require.NoError(t, err)
	require.Equal(t, "Mary", doc.Data["displayName"])
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Query(context.Background(), "users", Query{})
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Insert(context.Background(), "users", map[string]interface{}{})
	require.ErrorIs(t, err, ErrClosed)
}
