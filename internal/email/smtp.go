package email

import (
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"
)

type Message struct {
	FromName  string
	FromEmail string
	ToEmail   string
	Subject   string
	TextBody  string
}

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender delivers messages through one SMTP relay. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	dialer *gomail.Dialer
}

func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	d := gomail.NewDialer(settings.Host, settings.Port, settings.Username, settings.Password)
	d.TLSConfig = &tls.Config{ServerName: settings.Host, MinVersion: tls.VersionTLS12}
	return &SMTPSender{dialer: d}
}

func (s *SMTPSender) Send(msg Message) error {
	if err := s.dialer.DialAndSend(buildMessage(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	} else {
		m.SetHeader("From", msg.FromEmail)
	}
	m.SetHeader("To", msg.ToEmail)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	return m
}
