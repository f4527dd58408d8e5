package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

func TestParseContent(t *testing.T) {
	t.Run("PlainText", func(t *testing.T) {
		c := domain.ParseContent("hello")
		assert.Equal(t, domain.TextContent{Body: "hello"}, c)
		assert.Equal(t, "hello", c.Text())
	})

	t.Run("MalformedJSONFallsBackToText", func(t *testing.T) {
		raw := `{"type":"donation_card", "donation":`
		c := domain.ParseContent(raw)
		assert.Equal(t, domain.KindText, c.Kind())
		assert.Equal(t, raw, c.Text())
	})

	t.Run("DonationCard", func(t *testing.T) {
		raw := `{"type":"donation_card","donation":{"request_id":"A1","inventory_id":"I","product_name":"Bread","quantity":3},"requester_id":"R1"}`
		c := domain.ParseContent(raw)
		card, ok := c.(domain.DonationCard)
		require.True(t, ok)
		assert.Equal(t, "A1", card.Donation.RequestID)
		assert.Equal(t, "I", card.Donation.InventoryID)
		assert.Equal(t, "R1", card.RequesterID)
		assert.Equal(t, "Donation request: 3 x Bread", c.Text())
	})

	t.Run("CardWithoutRequestIDIsText", func(t *testing.T) {
		raw := `{"type":"donation_card","donation":{"inventory_id":"I"}}`
		assert.Equal(t, domain.KindText, domain.ParseContent(raw).Kind())
	})

	t.Run("UnknownTypeRendersRaw", func(t *testing.T) {
		raw := `{"type":"sticker","id":7}`
		c := domain.ParseContent(raw)
		assert.Equal(t, domain.UnknownContent{Raw: raw}, c)
		assert.Equal(t, raw, c.Text())
	})
}

func TestEncodeContentRoundTrip(t *testing.T) {
	d := domain.Donation{RequestID: "A1", InventoryID: "I", ProductName: "Bread", Quantity: 1}
	for _, c := range []domain.Content{
		domain.DonationCard{Donation: d, RequesterID: "R1"},
		domain.DonationAccepted{Donation: d},
		domain.DonationCancelled{Donation: d},
		domain.DonationUnavailable{Donation: d},
		domain.MediaContent{URL: "/uploads/a.png", MediaType: "image/png"},
	} {
		raw, err := domain.EncodeContent(c)
		require.NoError(t, err)
		assert.Equal(t, c, domain.ParseContent(raw), "kind %s", c.Kind())
	}

	_, err := domain.EncodeContent(domain.Tombstone{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestContentOf(t *testing.T) {
	raw, err := domain.EncodeContent(domain.DonationCard{
		Donation: domain.Donation{RequestID: "A1", InventoryID: "I"},
	})
	require.NoError(t, err)

	m := &domain.Message{ID: "1", Content: raw}
	_, ok := domain.CardOf(m)
	assert.True(t, ok)

	m.DeletedForAll = true
	assert.Equal(t, domain.Tombstone{}, domain.ContentOf(m))
	assert.Equal(t, domain.TombstoneText, domain.ContentOf(m).Text())
	_, ok = domain.CardOf(m)
	assert.False(t, ok)

	att := "/uploads/cake.jpg"
	media := &domain.Message{ID: "2", Content: "look", Attachment: &att}
	assert.Equal(t, domain.MediaContent{URL: att, Caption: "look"}, domain.ContentOf(media))
}
