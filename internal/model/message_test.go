package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageFromDocument(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]interface{}
		want    Body
		wantErr error
	}{
		{
			name: "text",
			data: map[string]interface{}{"type": "text", "text": "hello", "sender": "u1"},
			want: TextBody{Text: "hello"},
		},
		{
			name: "legacy text without type",
			data: map[string]interface{}{"content": "hi there", "senderId": "u1"},
			want: TextBody{Text: "hi there"},
		},
		{
			name: "property share",
			data: map[string]interface{}{"type": "property", "text": "look", "propertyId": "p9", "sender": "u1"},
			want: PropertyShareBody{PropertyID: "p9", Note: "look"},
		},
		{
			name:    "unknown type",
			data:    map[string]interface{}{"type": "sticker", "sender": "u1"},
			wantErr: ErrUnknownBody,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MessageFromDocument("m1", tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, m.Body)
			require.Equal(t, "u1", m.SenderID)
		})
	}

	_, err := MessageFromDocument("m2", map[string]interface{}{"type": "property"})
	require.Error(t, err)
}

func TestMessageRecord_PropertyShare(t *testing.T) {
	m := &Message{ConversationID: "c1", SenderID: "u1", ReceiverID: "u2", Body: NewPropertyShare("p7")}
	rec := m.Record()
	require.Equal(t, "property", rec[FieldType])
	require.Equal(t, "p7", rec[FieldPropertyID])
	require.Equal(t, "Check out this property: [Property ID: p7]", rec[FieldText])
	require.Equal(t, false, rec[FieldRead])

	back, err := MessageFromDocument("m1", rec)
	require.NoError(t, err)
	require.Equal(t, m.Body, back.Body)
}

func TestMessageJSON(t *testing.T) {
	b, err := json.Marshal(Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: NewPropertyShare("p7")})
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, "property", out["type"])
	require.Equal(t, "p7", out["propertyId"])
	require.Equal(t, "Check out this property: [Property ID: p7]", out["text"])

	b, err = json.Marshal(Message{ID: "m2", Body: TextBody{Text: "hi"}})
	require.NoError(t, err)
	out = nil
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, "text", out["type"])
	require.NotContains(t, out, "propertyId")
}
