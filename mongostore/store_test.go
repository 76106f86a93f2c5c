package mongostore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
)

func TestChangeEventToEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  bson.M
		want chat.Event
		ok   bool
	}{
		{
			name: "insert",
			raw: bson.M{
				"operationType": "insert",
				"fullDocument":  bson.M{"_id": "m1", "text": "hi", "author": "amy"},
				"documentKey":   bson.M{"_id": "m1"},
			},
			want: chat.Event{Kind: chat.EventCreated, ID: "m1", Text: "hi", Author: "amy"},
			ok:   true,
		},
		{
			name: "delete",
			raw: bson.M{
				"operationType": "delete",
				"documentKey":   bson.M{"_id": "m1"},
			},
			want: chat.Event{Kind: chat.EventDeleted, ID: "m1"},
			ok:   true,
		},
		{
			name: "update ignored",
			raw: bson.M{
				"operationType": "update",
				"documentKey":   bson.M{"_id": "m1"},
			},
			ok: false,
		},
		{
			name: "insert without id ignored",
			raw: bson.M{
				"operationType": "insert",
				"fullDocument":  bson.M{"text": "hi"},
			},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := bson.Marshal(tt.raw)
			require.NoError(t, err)

			var ce changeEvent
			require.NoError(t, bson.Unmarshal(data, &ce))

			got, ok := ce.toEvent()
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDocumentBSONShape(t *testing.T) {
	data, err := bson.Marshal(document{ID: "m1", Text: "hi", Author: "amy"})
	require.NoError(t, err)

	var raw bson.M
	require.NoError(t, bson.Unmarshal(data, &raw))
	assert.Equal(t, "m1", raw["_id"])
	assert.Equal(t, "hi", raw["text"])
	assert.Equal(t, "amy", raw["author"])
	assert.Contains(t, raw, "created_at")
	assert.Contains(t, raw, "seq")
}

func TestNewDocumentSeqIncreasesWithinMillisecond(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	s := &Store{now: func() time.Time { return at }}

	prev := s.newDocument(chat.Draft{Text: "first"})
	for i := 0; i < 100; i++ {
		next := s.newDocument(chat.Draft{Text: "next"})
		require.Equal(t, prev.CreatedAt, next.CreatedAt)
		require.Positive(t, bytes.Compare(next.Seq[:], prev.Seq[:]), "seq must grow in creation order")
		prev = next
	}
}

func TestListOrderBreaksTiesOnSeq(t *testing.T) {
	require.Len(t, listOrder, 2)
	assert.Equal(t, "created_at", listOrder[0].Key)
	assert.Equal(t, "seq", listOrder[1].Key)
}

func TestConnectRequiresURI(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
