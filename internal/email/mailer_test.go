package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/users"
)

type captureMailer struct {
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type directory map[string]users.User

func (d directory) GetUser(_ context.Context, id string) (users.User, error) {
	u, ok := d[id]
	if !ok {
		return users.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func TestSender_ResolvesRecipientByUserID(t *testing.T) {
	m := &captureMailer{}
	s := &Sender{Mailer: m, Users: directory{"buyer-1": {ID: "buyer-1", Name: "Maria", Email: "maria@example.com"}}}

	err := s.SendIntent(context.Background(), outbox.Email{
		ToUserID: "buyer-1",
		Template: TemplateTrackingUpdate,
		Data:     map[string]string{"order_id": "o-1", "tracking_number": "LBC12345"},
	})
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "maria@example.com", m.sent[0].To)
	assert.Equal(t, "Maria", m.sent[0].ToName)
	assert.Equal(t, "Your Order Has Shipped - Thriftian Marketplace", m.sent[0].Subject)
}

func TestSender_Errors(t *testing.T) {
	s := &Sender{Mailer: &captureMailer{}, Users: directory{}}

	err := s.SendIntent(context.Background(), outbox.Email{ToUserID: "ghost", Template: TemplateDisputeAlert})
	assert.Error(t, err)

	err = s.SendIntent(context.Background(), outbox.Email{To: "a@example.com", Template: "newsletter"})
	assert.Error(t, err)

	failing := &Sender{Mailer: &captureMailer{err: errors.New("smtp down")}}
	err = failing.SendIntent(context.Background(), outbox.Email{To: "a@example.com", Template: TemplateOrderConfirmation})
	assert.EqualError(t, err, "smtp down")
}

func TestRenderHTML_OrderConfirmation(t *testing.T) {
	html, err := RenderHTML(TemplateOrderConfirmation, map[string]string{
		"order_id":    "o-42",
		"order_total": "350.00",
		"buyer_name":  "Maria <script>",
		"items":       "Denim Jacket x1 - ₱100.00\nLinen Shirt x1 - ₱250.00",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "o-42")
	assert.Contains(t, html, "<li>Denim Jacket x1 - ₱100.00</li>")
	assert.Contains(t, html, "<li>Linen Shirt x1 - ₱250.00</li>")
	assert.Contains(t, html, "₱350.00")
	assert.NotContains(t, html, "<script>")
}

func TestRenderHTML_Unknown(t *testing.T) {
	_, err := RenderHTML("nope", nil)
	assert.Error(t, err)
}
