// Package webhook defines the inbound message payload posted by the
// messaging provider and its conversion to core.InboundEvent.
package webhook

import (
	"time"

	"github.com/poiesic/docreply/core"
)

// Content is the message body of a Payload.
type Content struct {
	ContentType string `json:"contentType"`
	Text        string `json:"text,omitempty"`
}

// Sender carries provider-specific sender details.
type Sender struct {
	SenderName string `json:"senderName,omitempty"`
}

// Payload is the JSON body of an inbound webhook call.
type Payload struct {
	MessageID    string    `json:"messageId" validate:"required"`
	Channel      string    `json:"channel,omitempty"`
	From         string    `json:"from" validate:"required"`
	To           string    `json:"to" validate:"required"`
	ReceivedAt   time.Time `json:"receivedAt,omitzero"`
	Content      Content   `json:"content"`
	WhatsApp     *Sender   `json:"whatsapp,omitempty"`
	Event        string    `json:"event"`
	UserResponse string    `json:"UserResponse,omitempty"`
}

// Text returns the message text, falling back to a button or list reply.
func (p Payload) Text() string {
	if p.Content.Text != "" {
		return p.Content.Text
	}
	return p.UserResponse
}

// InboundEvent converts the payload. A missing receive time is set to now.
func (p Payload) InboundEvent() *core.InboundEvent {
	event := &core.InboundEvent{
		ID:         p.MessageID,
		From:       p.From,
		To:         p.To,
		Text:       p.Text(),
		Kind:       core.EventKind(p.Event),
		ReceivedAt: p.ReceivedAt,
		Status:     core.EventReceived,
	}
	if p.WhatsApp != nil {
		event.SenderName = p.WhatsApp.SenderName
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	return event
}

// FromEvent builds the payload form of an event, used when events are
// republished onto a queue.
func FromEvent(e *core.InboundEvent) Payload {
	p := Payload{
		MessageID:  e.ID,
		From:       e.From,
		To:         e.To,
		ReceivedAt: e.ReceivedAt,
		Content:    Content{ContentType: "text", Text: e.Text},
		Event:      string(e.Kind),
	}
	if e.SenderName != "" {
		p.WhatsApp = &Sender{SenderName: e.SenderName}
	}
	return p
}
