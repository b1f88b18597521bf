package email

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
)

// SMTP sends locally rendered HTML through a plain relay such as MailHog.
type SMTP struct {
	host string
	port string
	from string
}

func NewSMTP(host, port, from string) *SMTP {
	return &SMTP{host: host, port: port, from: from}
}

func (s *SMTP) Send(_ context.Context, m Message) error {
	body, err := RenderHTML(m.Template, m.Data)
	if err != nil {
		return err
	}
	to := m.To
	if m.ToName != "" {
		to = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.ToName), m.To)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, mime.QEncoding.Encode("utf-8", m.Subject), body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{m.To}, []byte(msg))
}
