package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind is the discriminator stored in the "type" field of a
// structured message payload.
type ContentKind string

const (
	KindText                ContentKind = "text"
	KindMedia               ContentKind = "media"
	KindDonationCard        ContentKind = "donation_card"
	KindDonationAccepted    ContentKind = "donation_accepted"
	KindDonationCancelled   ContentKind = "donation_cancelled"
	KindDonationUnavailable ContentKind = "donation_unavailable"
	KindTombstone           ContentKind = "tombstone"
	KindUnknown             ContentKind = "unknown"
)

// TombstoneText is what every party sees in place of a message deleted
// for everyone.
const TombstoneText = "This message was deleted"

// Content is the closed set of payloads a message can carry. Only the
// types in this file implement it.
type Content interface {
	Kind() ContentKind
	Text() string
	isContent()
}

// Donation identifies one reservation attempt against an inventory item.
type Donation struct {
	RequestID   string `json:"request_id"`
	InventoryID string `json:"inventory_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

func (d Donation) describe() string {
	if d.Quantity > 0 {
		return fmt.Sprintf("%d x %s", d.Quantity, d.ProductName)
	}
	return d.ProductName
}

type TextContent struct {
	Body string
}

type MediaContent struct {
	URL       string
	MediaType string
	Caption   string
}

// DonationCard is a donation request embedded in a message.
type DonationCard struct {
	Donation    Donation
	RequesterID string
}

// DonationAccepted is the notice sent to a requester whose request won.
type DonationAccepted struct {
	Donation Donation
}

// DonationCancelled is the notice sent when a request is withdrawn or
// voided by the bakery.
type DonationCancelled struct {
	Donation Donation
}

// DonationUnavailable is the notice sent to requesters whose pending
// request was canceled because another request claimed the inventory.
type DonationUnavailable struct {
	Donation Donation
}

type Tombstone struct{}

// UnknownContent is a structured payload of an unrecognized type. It is
// rendered as its raw text.
type UnknownContent struct {
	Raw string
}

func (TextContent) Kind() ContentKind         { return KindText }
func (MediaContent) Kind() ContentKind        { return KindMedia }
func (DonationCard) Kind() ContentKind        { return KindDonationCard }
func (DonationAccepted) Kind() ContentKind    { return KindDonationAccepted }
func (DonationCancelled) Kind() ContentKind   { return KindDonationCancelled }
func (DonationUnavailable) Kind() ContentKind { return KindDonationUnavailable }
func (Tombstone) Kind() ContentKind           { return KindTombstone }
func (UnknownContent) Kind() ContentKind      { return KindUnknown }

func (TextContent) isContent()         {}
func (MediaContent) isContent()        {}
func (DonationCard) isContent()        {}
func (DonationAccepted) isContent()    {}
func (DonationCancelled) isContent()   {}
func (DonationUnavailable) isContent() {}
func (Tombstone) isContent()           {}
func (UnknownContent) isContent()      {}

func (c TextContent) Text() string { return c.Body }

func (c MediaContent) Text() string {
	if c.Caption != "" {
		return c.Caption
	}
	return c.URL
}

func (c DonationCard) Text() string {
	return "Donation request: " + c.Donation.describe()
}

func (c DonationAccepted) Text() string {
	return "Your donation request for " + c.Donation.describe() + " was accepted"
}

func (c DonationCancelled) Text() string {
	return "Your donation request for " + c.Donation.describe() + " was cancelled"
}

func (c DonationUnavailable) Text() string {
	return "Your donation request for " + c.Donation.describe() + " is no longer available"
}

func (Tombstone) Text() string { return TombstoneText }

func (c UnknownContent) Text() string { return c.Raw }

// envelope is the wire shape of every structured payload.
type envelope struct {
	Type        ContentKind `json:"type"`
	Donation    *Donation   `json:"donation,omitempty"`
	RequesterID string      `json:"requester_id,omitempty"`
	URL         string      `json:"url,omitempty"`
	MediaType   string      `json:"media_type,omitempty"`
	Caption     string      `json:"caption,omitempty"`
	Text        string      `json:"text,omitempty"`
}

// ParseContent decodes raw message content. It never fails: anything
// that is not a well-formed structured payload becomes plain text, and
// a well-formed payload of an unknown type becomes UnknownContent.
func ParseContent(raw string) Content {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return TextContent{Body: raw}
	}
	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Type == "" {
		return TextContent{Body: raw}
	}

	switch env.Type {
	case KindText:
		return TextContent{Body: env.Text}
	case KindMedia:
		if env.URL == "" {
			return TextContent{Body: raw}
		}
		return MediaContent{URL: env.URL, MediaType: env.MediaType, Caption: env.Caption}
	case KindDonationCard:
		if !validDonation(env.Donation) {
			return TextContent{Body: raw}
		}
		return DonationCard{Donation: *env.Donation, RequesterID: env.RequesterID}
	case KindDonationAccepted, KindDonationCancelled, KindDonationUnavailable:
		if !validDonation(env.Donation) {
			return TextContent{Body: raw}
		}
		switch env.Type {
		case KindDonationAccepted:
			return DonationAccepted{Donation: *env.Donation}
		case KindDonationCancelled:
			return DonationCancelled{Donation: *env.Donation}
		default:
			return DonationUnavailable{Donation: *env.Donation}
		}
	}
	return UnknownContent{Raw: raw}
}

func validDonation(d *Donation) bool {
	return d != nil && d.RequestID != "" && d.InventoryID != ""
}

// ContentOf resolves the effective content of a message, taking the
// tombstone flag and attachments into account.
func ContentOf(m *Message) Content {
	if m.DeletedForAll {
		return Tombstone{}
	}
	if m.Attachment != nil && *m.Attachment != "" {
		return MediaContent{URL: *m.Attachment, Caption: m.Content}
	}
	return ParseContent(m.Content)
}

// EncodeContent serializes c into the string stored in Message.Content.
// Plain text is stored verbatim.
func EncodeContent(c Content) (string, error) {
	var env envelope
	switch v := c.(type) {
	case TextContent:
		return v.Body, nil
	case UnknownContent:
		return v.Raw, nil
	case MediaContent:
		env = envelope{Type: KindMedia, URL: v.URL, MediaType: v.MediaType, Caption: v.Caption}
	case DonationCard:
		d := v.Donation
		env = envelope{Type: KindDonationCard, Donation: &d, RequesterID: v.RequesterID}
	case DonationAccepted:
		d := v.Donation
		env = envelope{Type: KindDonationAccepted, Donation: &d}
	case DonationCancelled:
		d := v.Donation
		env = envelope{Type: KindDonationCancelled, Donation: &d}
	case DonationUnavailable:
		d := v.Donation
		env = envelope{Type: KindDonationUnavailable, Donation: &d}
	case Tombstone:
		return "", fmt.Errorf("encode content: %w: tombstones are not sent", ErrInvalidInput)
	default:
		return "", fmt.Errorf("encode content: %w: unsupported payload %T", ErrInvalidInput, c)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(b), nil
}

// CardOf returns the donation card carried by m, if any. Tombstoned
// messages never carry a card.
func CardOf(m *Message) (DonationCard, bool) {
	card, ok := ContentOf(m).(DonationCard)
	return card, ok
}
