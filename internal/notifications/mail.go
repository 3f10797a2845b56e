package notifications

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// MailSender is satisfied by *mail.Dialer.
type MailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPConfig configures mail delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailDispatcher emails events to recipients that carry an address.
type MailDispatcher struct {
	from   string
	sender MailSender
}

// NewSMTPSender returns a STARTTLS dialer for cfg.
func NewSMTPSender(cfg SMTPConfig) *mail.Dialer {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := mail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return d
}

// NewMailDispatcher creates a dispatcher sending from the given address.
func NewMailDispatcher(from string, sender MailSender) *MailDispatcher {
	return &MailDispatcher{from: from, sender: sender}
}

// Notify sends a plain-text message. Events without an address are skipped.
func (d *MailDispatcher) Notify(ctx context.Context, ev Event) error {
	if ev.Email == "" || d.sender == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", ev.Email)
	m.SetHeader("Subject", ev.Title)
	m.SetBody("text/plain", ev.Message)

	if err := d.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", ev.Email, err)
	}
	return nil
}
