// Package line is the boundary to the LINE Messaging API: webhook signature
// checks, payload decoding and the outbound reply client.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/line/line-bot-sdk-go/v7/linebot"
)

const SignatureHeader = "X-Line-Signature"

// DefaultVerifyReplyTokens are sent by the platform when a webhook URL is
// registered or checked from the console.
var DefaultVerifyReplyTokens = []string{
	"00000000000000000000000000000000",
	"ffffffffffffffffffffffffffffffff",
}

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedPayload = errors.New("webhook payload malformed")
)

var validate = validator.New()

type Kind int

const (
	KindOther Kind = iota
	KindText
	KindImage
	KindFollow
	KindUnfollow
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFollow:
		return "follow"
	case KindUnfollow:
		return "unfollow"
	}
	return "other"
}

type Payload struct {
	Destination string
	Events      []Event
}

type rawPayload struct {
	Destination string           `json:"destination"`
	Events      []*linebot.Event `json:"events" validate:"required,dive,required"`
}

// Event is a decoded SDK event with the accessors the processor needs.
type Event struct {
	*linebot.Event
}

// Kind classifies the event. Message events without a sender are ignored.
func (e Event) Kind() Kind {
	switch e.Type {
	case linebot.EventTypeFollow:
		return KindFollow
	case linebot.EventTypeUnfollow:
		return KindUnfollow
	case linebot.EventTypeMessage:
		if e.SenderID() == "" {
			return KindOther
		}
		switch e.Message.(type) {
		case *linebot.TextMessage:
			return KindText
		case *linebot.ImageMessage:
			return KindImage
		}
	}
	return KindOther
}

func (e Event) SenderID() string {
	if e.Source == nil {
		return ""
	}
	return e.Source.UserID
}

// Text is the body of a text message, or empty.
func (e Event) Text() string {
	if m, ok := e.Message.(*linebot.TextMessage); ok {
		return m.Text
	}
	return ""
}

func (e Event) MessageID() string {
	switch m := e.Message.(type) {
	case *linebot.TextMessage:
		return m.ID
	case *linebot.ImageMessage:
		return m.ID
	case *linebot.VideoMessage:
		return m.ID
	case *linebot.AudioMessage:
		return m.ID
	case *linebot.FileMessage:
		return m.ID
	case *linebot.LocationMessage:
		return m.ID
	case *linebot.StickerMessage:
		return m.ID
	}
	return ""
}

// Redelivered reports whether the platform marked this event as a retry.
func (e Event) Redelivered() bool {
	return e.DeliveryContext.IsRedelivery
}

// ID is the platform-assigned identity used for redelivery detection.
func (e Event) ID() string {
	if e.WebhookEventID != "" {
		return e.WebhookEventID
	}
	if id := e.MessageID(); id != "" {
		return "msg:" + id
	}
	return ""
}

// VerifySignature checks the base64 HMAC-SHA256 of body against signature in
// constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// DecodePayload parses a raw webhook body whose signature was already checked.
func DecodePayload(body []byte) (p *Payload, err error) {
	// The SDK dereferences nested objects (message, beacon, things) without
	// nil checks, so a truncated event panics inside UnmarshalJSON.
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrMalformedPayload, r)
		}
	}()

	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	p = &Payload{Destination: raw.Destination, Events: make([]Event, 0, len(raw.Events))}
	for i, ev := range raw.Events {
		if ev.Type == "" {
			return nil, fmt.Errorf("%w: event %d has no type", ErrMalformedPayload, i)
		}
		p.Events = append(p.Events, Event{Event: ev})
	}
	return p, nil
}
