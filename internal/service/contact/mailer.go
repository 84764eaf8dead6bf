package contact

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"lifecoach/backend/internal/domain"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// To is the operator inbox.
	To string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer emails each contact message to the operator.
type SMTPMailer struct {
	from string
	to   string
	d    dialer
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.To == "" {
		return nil, fmt.Errorf("contact: smtp host and recipient are required")
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		from: from,
		to:   cfg.To,
		d:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, c domain.ContactMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.d.DialAndSend(operatorMessage(m.from, m.to, c))
}

func operatorMessage(from, to string, c domain.ContactMessage) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetAddressHeader("Reply-To", c.Email, c.Name)
	msg.SetHeader("Subject", "[Contact] "+c.Subject)
	msg.SetBody("text/plain", fmt.Sprintf("From: %s <%s>\n\n%s\n", c.Name, c.Email, c.Message))
	return msg
}
