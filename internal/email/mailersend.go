package email

import (
	"context"
	"fmt"

	"github.com/mailersend/mailersend-go"
)

// MailerSend sends through hosted MailerSend templates, falling back to
// locally rendered HTML when a template has no hosted id configured.
type MailerSend struct {
	client      *mailersend.Mailersend
	from        mailersend.From
	templateIDs map[string]string
}

func NewMailerSend(apiKey, fromEmail, fromName string, templateIDs map[string]string) *MailerSend {
	if fromName == "" {
		fromName = "Thriftian Marketplace"
	}
	return &MailerSend{
		client:      mailersend.NewMailersend(apiKey),
		from:        mailersend.From{Name: fromName, Email: fromEmail},
		templateIDs: templateIDs,
	}
}

func (s *MailerSend) Send(ctx context.Context, m Message) error {
	msg := s.client.Email.NewMessage()
	msg.SetFrom(s.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: m.ToName, Email: m.To}})
	msg.SetSubject(m.Subject)

	if id := s.templateIDs[m.Template]; id != "" {
		data := make(map[string]interface{}, len(m.Data))
		for k, v := range m.Data {
			data[k] = v
		}
		msg.SetTemplateID(id)
		msg.SetPersonalization([]mailersend.Personalization{{Email: m.To, Data: data}})
	} else {
		html, err := RenderHTML(m.Template, m.Data)
		if err != nil {
			return err
		}
		msg.SetHTML(html)
	}

	if _, err := s.client.Email.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailersend %s to %s: %w", m.Template, m.To, err)
	}
	return nil
}
