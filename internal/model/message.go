package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Message document fields.
const (
	FieldConversationID = "conversationId"
	FieldSender         = "sender"
	FieldReceiver       = "receiver"
	FieldTimestamp      = "timestamp"
	FieldRead           = "read"
	FieldType           = "type"
	FieldText           = "text"
)

var ErrUnknownBody = errors.New("unknown message type")

type BodyKind string

const (
	KindText     BodyKind = "text"
	KindProperty BodyKind = "property"
)

// Body is the content of a message. It is closed over TextBody and
// PropertyShareBody; use MatchBody to branch on it.
type Body interface {
	Kind() BodyKind
	Preview() string
	sealed()
}

type TextBody struct {
	Text string
}

func (TextBody) Kind() BodyKind    { return KindText }
func (b TextBody) Preview() string { return b.Text }
func (TextBody) sealed()           {}

// PropertyShareBody points the other participant at a listing. Note is the
// text shown by clients that cannot render the listing card.
type PropertyShareBody struct {
	PropertyID string
	Note       string
}

func NewPropertyShare(propertyID string) PropertyShareBody {
	return PropertyShareBody{
		PropertyID: propertyID,
		Note:       fmt.Sprintf("Check out this property: [Property ID: %s]", propertyID),
	}
}

func (PropertyShareBody) Kind() BodyKind    { return KindProperty }
func (b PropertyShareBody) Preview() string { return b.Note }
func (PropertyShareBody) sealed()           {}

// MatchBody dispatches on the body variant. Adding a variant adds a parameter
// here, which breaks every caller until it handles the new case.
func MatchBody[T any](b Body, text func(TextBody) T, property func(PropertyShareBody) T) T {
	switch v := b.(type) {
	case TextBody:
		return text(v)
	case *TextBody:
		return text(*v)
	case PropertyShareBody:
		return property(v)
	case *PropertyShareBody:
		return property(*v)
	}
	panic(fmt.Sprintf("model: unhandled message body %T", b))
}

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           Body
	Timestamp      time.Time
	Read           bool
}

func (m *Message) Record() map[string]interface{} {
	rec := map[string]interface{}{
		FieldConversationID: m.ConversationID,
		FieldSender:         m.SenderID,
		FieldReceiver:       m.ReceiverID,
		FieldTimestamp:      m.Timestamp,
		FieldRead:           m.Read,
		FieldType:           string(m.Body.Kind()),
	}
	MatchBody(m.Body,
		func(b TextBody) struct{} {
			rec[FieldText] = b.Text
			return struct{}{}
		},
		func(b PropertyShareBody) struct{} {
			rec[FieldText] = b.Note
			rec[FieldPropertyID] = b.PropertyID
			return struct{}{}
		})
	return rec
}

type messageJSON struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Type           BodyKind  `json:"type"`
	Text           string    `json:"text"`
	PropertyID     string    `json:"propertyId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
}

// MarshalJSON flattens the body into type, text and propertyId, the shape the
// web client renders.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Timestamp:      m.Timestamp,
		Read:           m.Read,
	}
	if m.Body != nil {
		out.Type = m.Body.Kind()
		parts := MatchBody(m.Body,
			func(b TextBody) [2]string { return [2]string{b.Text, ""} },
			func(b PropertyShareBody) [2]string { return [2]string{b.Note, b.PropertyID} })
		out.Text, out.PropertyID = parts[0], parts[1]
	}
	return json.Marshal(out)
}

// MessageFromDocument decodes a messages document. Documents written by the
// older web client use "content" for the text and may omit the type.
func MessageFromDocument(id string, data map[string]interface{}) (*Message, error) {
	if id == "" {
		return nil, errMissingID
	}
	text := str(data, FieldText)
	if text == "" {
		text = str(data, "content")
	}
	var body Body
	switch kind := BodyKind(str(data, FieldType)); kind {
	case "", KindText:
		body = TextBody{Text: text}
	case KindProperty:
		pid := str(data, FieldPropertyID)
		if pid == "" {
			return nil, errors.Errorf("message %s: property share without propertyId", id)
		}
		body = PropertyShareBody{PropertyID: pid, Note: text}
	default:
		return nil, errors.Wrapf(ErrUnknownBody, "message %s: %q", id, kind)
	}
	sender := str(data, FieldSender)
	if sender == "" {
		sender = str(data, "senderId")
	}
	receiver := str(data, FieldReceiver)
	if receiver == "" {
		receiver = str(data, "receiverId")
	}
	return &Message{
		ID:             id,
		ConversationID: str(data, FieldConversationID),
		SenderID:       sender,
		ReceiverID:     receiver,
		Body:           body,
		Timestamp:      instant(data, FieldTimestamp),
		Read:           boolean(data, FieldRead),
	}, nil
}
