package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"

	"CareVault/config"
)

var ErrSMTPConfigMissing = errors.New("smtp config missing")

// Mailer sends share links over SMTP.
type Mailer struct {
	cfg  config.SMTPConfig
	send func(e *email.Email) error
}

func NewMailer(cfg config.SMTPConfig) (*Mailer, error) {
	if !cfg.Enabled() {
		return nil, ErrSMTPConfigMissing
	}
	m := &Mailer{cfg: cfg}
	m.send = m.deliver
	return m, nil
}

// SendShareLink mails a share link and its expiry to one recipient.
func (m *Mailer) SendShareLink(to, link string, expiresAt time.Time) error {
	if to == "" {
		return errors.New("recipient missing")
	}
	e := buildShareMail(m.cfg.From, to, link, expiresAt)
	if err := m.send(e); err != nil {
		return fmt.Errorf("send share mail: %w", err)
	}
	return nil
}

func buildShareMail(from, to, link string, expiresAt time.Time) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = "A health record has been shared with you"
	until := expiresAt.UTC().Format("2006-01-02 15:04 MST")
	e.Text = []byte("A health record has been shared with you.\n\n" +
		"Download: " + link + "\n" +
		"The link stops working at " + until + ".\n")
	e.HTML = []byte(`
		<h2>A health record has been shared with you</h2>
		<p><a href="` + html.EscapeString(link) + `">Download the record</a></p>
		<p>The link stops working at ` + html.EscapeString(until) + `.</p>
	`)
	return e
}

func (m *Mailer) deliver(e *email.Email) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}
	useTLS := m.cfg.TLS || m.cfg.Port == "465"

	if useTLS {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if m.cfg.StartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
